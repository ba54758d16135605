package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundtrip(t *testing.T) {
	pair, err := Issue("kiosk-7", "kiosk", "sitecheck", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty tokens")
	}

	claims, err := Parse(pair.AccessToken, "secret", "sitecheck")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "kiosk-7" {
		t.Errorf("subject = %q", claims.Subject)
	}
	if claims.Role != "kiosk" {
		t.Errorf("role = %q", claims.Role)
	}
}

func TestParseWrongKey(t *testing.T) {
	pair, err := Issue("kiosk-7", "kiosk", "sitecheck", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "other-secret", "sitecheck"); err == nil {
		t.Fatal("want error for wrong signing key")
	}
}

func TestParseIssuerMismatch(t *testing.T) {
	pair, err := Issue("kiosk-7", "kiosk", "other-system", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "secret", "sitecheck"); err == nil {
		t.Fatal("want error for issuer mismatch")
	}
}

func TestParseExpired(t *testing.T) {
	pair, err := Issue("kiosk-7", "kiosk", "sitecheck", "secret", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "secret", "sitecheck"); err == nil {
		t.Fatal("want error for expired token")
	}
}
