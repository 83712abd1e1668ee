package auth

import (
	"testing"
	"time"
)

func TestSessionManager_IssueAndParse(t *testing.T) {
	manager := NewSessionManager("secret", time.Hour)
	token, expires, err := manager.Issue("admin", RoleAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Until(expires) <= 0 || time.Until(expires) > time.Hour {
		t.Fatalf("unexpected expiry %v", expires)
	}

	claims, err := manager.Parse(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "admin" || claims.Username != "admin" || claims.Role != RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := manager.Parse(token + "tampered"); err == nil {
		t.Fatalf("expected parse error for tampered token")
	}
}

func TestSessionManager_EmptySecret(t *testing.T) {
	manager := NewSessionManager("", time.Hour)
	if _, _, err := manager.Issue("admin", RoleAdmin); err == nil {
		t.Fatalf("expected error when secret is empty")
	}
}

func TestSessionManager_Expired(t *testing.T) {
	manager := NewSessionManager("secret", time.Minute)
	issuedAt := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return issuedAt }

	token, _, err := manager.Issue("admin", RoleAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	manager.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := manager.Parse(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestSessionManager_DifferentSecret(t *testing.T) {
	token, _, err := NewSessionManager("one", time.Hour).Issue("admin", RoleAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewSessionManager("two", time.Hour).Parse(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
