package auth

import (
	"encoding/base32"
	"testing"
	"time"
)

// RFC 6238 appendix B vectors for SHA1, truncated to 6 digits.
var rfcSecret = base32.StdEncoding.EncodeToString([]byte("12345678901234567890"))

func TestVerifyTOTPRFCVectors(t *testing.T) {
	vectors := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}

	for _, v := range vectors {
		if !VerifyTOTP(rfcSecret, v.code, time.Unix(v.unix, 0)) {
			t.Errorf("expected code %s valid at t=%d", v.code, v.unix)
		}
	}
}

func TestVerifyTOTPAcceptsAdjacentStep(t *testing.T) {
	// Code for t=59 (counter 1) presented 30 seconds later (counter 2).
	if !VerifyTOTP(rfcSecret, "287082", time.Unix(89, 0)) {
		t.Fatal("expected one step of clock drift to be tolerated")
	}
	// Two steps out is too far.
	if VerifyTOTP(rfcSecret, "287082", time.Unix(130, 0)) {
		t.Fatal("expected codes two steps old to be rejected")
	}
}

func TestVerifyTOTPRejectsGarbage(t *testing.T) {
	now := time.Unix(59, 0)
	cases := []string{"", "12345", "1234567", "28708a", "000000"}
	for _, code := range cases {
		if VerifyTOTP(rfcSecret, code, now) {
			t.Errorf("expected code %q to be rejected", code)
		}
	}
	if VerifyTOTP("%%%not-base32%%%", "287082", now) {
		t.Fatal("expected undecodable secret to fail verification")
	}
}
