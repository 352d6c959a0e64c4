package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	claims := NewSession("owner", "admin", time.Hour, time.Now())
	issued, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	parsed, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if parsed != claims {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
	if parsed.ExpiresAt().Before(time.Now()) {
		t.Fatalf("expiry should be in the future: %v", parsed.ExpiresAt())
	}
}

func TestNewSessionUsesFreshTokenIDs(t *testing.T) {
	now := time.Now()
	a := NewSession("owner", "admin", time.Hour, now)
	b := NewSession("owner", "admin", time.Hour, now)
	if a.JTI == b.JTI {
		t.Fatal("expected distinct token ids")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, NewSession("owner", "admin", -time.Minute, time.Now()))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	_, err = ParseToken(secret, issued)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, NewSession("owner", "admin", time.Hour, time.Now()))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	cases := map[string]string{
		"wrong secret": issued,
		"no separator": strings.ReplaceAll(issued, ".", ""),
		"extra part":   issued + ".x",
		"empty":        "",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			key := secret
			if name == "wrong secret" {
				key = []byte("other")
			}
			if _, err := ParseToken(key, token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := IssueToken(nil, NewSession("owner", "admin", time.Hour, time.Now())); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
