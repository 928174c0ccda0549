package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/store"
)

type authenticatorStub struct {
	users map[string]domain.User
}

func (s *authenticatorStub) Authenticate(_ context.Context, email string, password string) (domain.User, error) {
	user, ok := s.users[email]
	if !ok || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domain.User{}, fmt.Errorf("%w: invalid credentials", store.ErrUnauthenticated)
	}
	return user, nil
}

func newAuthStub(t *testing.T) *authenticatorStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return &authenticatorStub{users: map[string]domain.User{
		"tech@example.com": {ID: 42, Email: "tech@example.com", PasswordHash: string(hash), Role: domain.RoleTechnician, BranchID: 7},
	}}
}

func TestLoginIssuesTokenCarryingScope(t *testing.T) {
	auth := NewAuthManager("test-secret-key-with-32-characters", time.Hour, newAuthStub(t))

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: "  Tech@Example.com ", Password: "secret123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.UserID != 42 || resp.Role != domain.RoleTechnician || resp.BranchID != 7 {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	want := domain.Actor{UserID: 42, Email: "tech@example.com", Role: domain.RoleTechnician, BranchID: 7}
	if actor != want {
		t.Fatalf("expected %+v, got %+v", want, actor)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	auth := NewAuthManager("test-secret-key-with-32-characters", time.Hour, newAuthStub(t))

	_, err := auth.Login(context.Background(), domain.LoginRequest{Email: "tech@example.com", Password: "wrong"})
	if !errors.Is(err, store.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	_, err = auth.Login(context.Background(), domain.LoginRequest{Email: "tech@example.com"})
	if !errors.Is(err, store.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for a blank password, got %v", err)
	}
}

func TestParseTokenRejectsExpiredToken(t *testing.T) {
	auth := NewAuthManager("test-secret-key-with-32-characters", time.Minute, newAuthStub(t))
	auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: "tech@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := auth.ParseToken(resp.AccessToken); !errors.Is(err, store.ErrUnauthenticated) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	auth := NewAuthManager("test-secret-key-with-32-characters", time.Hour, newAuthStub(t))
	other := NewAuthManager("another-secret-key-with-32-chars!!", time.Hour, newAuthStub(t))

	resp, err := other.Login(context.Background(), domain.LoginRequest{Email: "tech@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := auth.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	parts := strings.Split(resp.AccessToken, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	if _, err := auth.ParseToken(parts[0] + "." + parts[1] + "."); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	auth := NewAuthManager("test-secret-key-with-32-characters", time.Hour, newAuthStub(t))

	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "42",
			Issuer:    tokenIssuer,
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: 9,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(auth.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(signed); !errors.Is(err, store.ErrUnauthenticated) {
		t.Fatalf("expected unknown role to be rejected, got %v", err)
	}
}

func TestAttemptLimiterWindow(t *testing.T) {
	limiter := newAttemptLimiter(2, time.Minute)

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatalf("expected first two attempts to pass")
	}
	if limiter.Allow("a") {
		t.Fatalf("expected third attempt to be limited")
	}
	if !limiter.Allow("b") {
		t.Fatalf("expected a different key to have its own budget")
	}
}
