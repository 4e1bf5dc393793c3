package auth

import "testing"

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("Password123!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	match, err := CheckPassword(hash, "Password123!")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !match {
		t.Fatal("expected matching password")
	}
}

func TestWrongPasswordIsNotAnError(t *testing.T) {
	hash, err := HashPassword("Password123!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	match, err := CheckPassword(hash, "wrongpassword")
	if err != nil {
		t.Fatalf("mismatch must not be an error, got %v", err)
	}
	if match {
		t.Fatal("expected mismatch")
	}
}

func TestMalformedHashIsAnError(t *testing.T) {
	if _, err := CheckPassword("not-a-bcrypt-hash", "anything"); err == nil {
		t.Fatal("expected malformed-hash error")
	}
}
