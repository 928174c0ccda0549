package xid

import "github.com/google/uuid"

// New returns a random identifier such as "audit-9f1c...". Callers pass the
// entity prefix.
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
