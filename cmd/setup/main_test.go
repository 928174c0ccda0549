package main

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/store/memory"
)

func TestEnsureSuperuserIsIdempotent(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	req := superuserRequest{Email: " Owner@Shop.test ", Password: "owner-pass", BranchID: memory.SeedCentralBranch}

	user, created, err := ensureSuperuser(ctx, repo, req)
	if err != nil {
		t.Fatalf("ensure superuser failed: %v", err)
	}
	if !created || user.Role != domain.RoleSuperAdmin || user.Email != "owner@shop.test" {
		t.Fatalf("unexpected first result: created=%v user=%+v", created, user)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("owner-pass")) != nil {
		t.Fatalf("expected stored hash to match the password")
	}

	again, created, err := ensureSuperuser(ctx, repo, req)
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if created || again.ID != user.ID {
		t.Fatalf("expected the existing user to be returned, got created=%v id=%d", created, again.ID)
	}
}

func TestEnsureSuperuserValidatesInput(t *testing.T) {
	repo := memory.NewSeeded()

	if _, _, err := ensureSuperuser(context.Background(), repo, superuserRequest{Email: "nope", Password: "long-enough"}); err == nil {
		t.Fatalf("expected invalid email to be rejected")
	}
	if _, _, err := ensureSuperuser(context.Background(), repo, superuserRequest{Email: "a@b.test", Password: "123"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", " env@x.test "); got != "env@x.test" {
		t.Fatalf("unexpected value %q", got)
	}
}
