package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"tokosakti/backend/internal/domain"
	"tokosakti/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) (*AuthManager, *memory.Store) {
	t.Helper()
	repo := memory.New()
	for _, u := range []domain.UserAccount{
		{Username: "admin", Password: "rahasia-admin", Role: "admin", Active: true},
		{Username: "kasir1", Password: "rahasia-kasir", Role: "cashier", Active: true},
		{Username: "bekas", Password: "rahasia-bekas", Role: "cashier", Active: false},
	} {
		if err := repo.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("seed user %s: %v", u.Username, err)
		}
	}
	return NewAuthManager("test-secret-0123456789-0123456789", time.Hour, repo), repo
}

func TestLoginAndParseToken(t *testing.T) {
	auth, _ := newTestAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Username: "Admin", Password: "rahasia-admin"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.AccessToken == "" || resp.Role != "admin" {
		t.Fatalf("unexpected response: token empty or role %q", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestLoginRejections(t *testing.T) {
	auth, _ := newTestAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "salah"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "nobody", Password: "rahasia"}); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "bekas", Password: "rahasia-bekas"}); err == nil {
		t.Fatalf("expected inactive account to fail")
	}
}

func TestParseTokenRejectsGarbageAndForeignSignature(t *testing.T) {
	auth, _ := newTestAuth(t)

	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to fail")
	}

	other := NewAuthManager("another-secret-another-secret-xx", time.Hour, nil)
	token, err := other.sign("admin", "admin", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to fail")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth, _ := newTestAuth(t)

	token, err := auth.sign("admin", "admin", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestBootstrapUpgradesPlainTextPasswords(t *testing.T) {
	_, repo := newTestAuth(t)

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, u := range users {
		if !strings.HasPrefix(u.Password, "$2") {
			t.Fatalf("password for %s not upgraded to bcrypt", u.Username)
		}
	}
}
