// Package numbering formats and parses year-scoped business document numbers
// such as SALE-2026-00001.
package numbering

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindSale    Kind = "SALE"
	KindService Kind = "SVC"
)

const digits = 5

func (k Kind) Valid() bool {
	return k == KindSale || k == KindService
}

// Prefix returns "{KIND}-{YYYY}-".
func Prefix(kind Kind, year int) string {
	return fmt.Sprintf("%s-%04d-", kind, year)
}

func Format(kind Kind, year int, seq int) string {
	return fmt.Sprintf("%s%0*d", Prefix(kind, year), digits, seq)
}

// Parse extracts the counter from a number of the given kind and year.
func Parse(kind Kind, year int, number string) (int, bool) {
	prefix := Prefix(kind, year)
	if !strings.HasPrefix(number, prefix) {
		return 0, false
	}
	tail := strings.TrimPrefix(number, prefix)
	if len(tail) != digits {
		return 0, false
	}
	seq, err := strconv.Atoi(tail)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// Seed returns the last used counter implied by the greatest existing number.
// A missing or malformed number counts as 0.
func Seed(kind Kind, year int, greatest string) int {
	seq, ok := Parse(kind, year, greatest)
	if !ok {
		return 0
	}
	return seq
}

// Next returns the number following the greatest existing one.
func Next(kind Kind, year int, greatest string) string {
	return Format(kind, year, Seed(kind, year, greatest)+1)
}
