package scope

import (
	"testing"

	"tallerpos/backend/internal/domain"
)

func TestSuperAdminSeesEveryBranch(t *testing.T) {
	s := Resolve(domain.Actor{UserID: 1, Role: domain.RoleSuperAdmin, BranchID: 1})
	if !s.Unrestricted() {
		t.Fatalf("expected unrestricted scope")
	}
	if got := s.ReadFilter(0); got != 0 {
		t.Fatalf("expected no branch filter, got %d", got)
	}
	if got := s.ReadFilter(7); got != 7 {
		t.Fatalf("expected explicit filter to pass through, got %d", got)
	}
	if got := s.WriteBranch(0); got != 1 {
		t.Fatalf("expected home branch default, got %d", got)
	}
	if got := s.WriteBranch(3); got != 3 {
		t.Fatalf("expected explicit write branch, got %d", got)
	}
	if !s.Permits(42) {
		t.Fatalf("expected every branch to be permitted")
	}
}

func TestRestrictedRolesAreForcedToOwnBranch(t *testing.T) {
	roles := []domain.Role{domain.RoleAdmin, domain.RoleTechnician, domain.RoleCashier, domain.RoleTechnicianCashier}
	for _, role := range roles {
		s := Resolve(domain.Actor{UserID: 9, Role: role, BranchID: 2})
		if s.Unrestricted() {
			t.Fatalf("role %s must be restricted", role)
		}
		if got := s.ReadFilter(0); got != 2 {
			t.Fatalf("role %s: expected read filter 2, got %d", role, got)
		}
		if got := s.ReadFilter(5); got != 2 {
			t.Fatalf("role %s: client branch must be overridden, got %d", role, got)
		}
		if got := s.WriteBranch(5); got != 2 {
			t.Fatalf("role %s: expected write branch 2, got %d", role, got)
		}
		if s.Permits(5) || !s.Permits(2) {
			t.Fatalf("role %s: unexpected permit result", role)
		}
	}
}
