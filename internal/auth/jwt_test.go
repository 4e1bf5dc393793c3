package auth

import (
	"strings"
	"testing"
)

func TestGenerateAndParseToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateToken("user-1", "alice@x.com", "org-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %s", claims.Subject)
	}
	if claims.Email != "alice@x.com" {
		t.Fatalf("expected email claim, got %s", claims.Email)
	}
	if claims.OrgID != "org-1" {
		t.Fatalf("expected org claim, got %s", claims.OrgID)
	}
	if claims.ExpiresAt == nil {
		t.Fatal("expected expiry claim")
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateToken("user-1", "alice@x.com", "org-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := ParseToken(tampered); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "first-secret")
	token, err := GenerateToken("user-1", "alice@x.com", "org-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	t.Setenv("JWT_SECRET", "other-secret")
	if _, err := ParseToken(token); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := GenerateToken("user-1", "alice@x.com", "org-1"); err == nil {
		t.Fatal("expected missing-secret error")
	}
}
