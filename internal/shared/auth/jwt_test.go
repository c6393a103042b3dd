package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestSigner(t *testing.T, secret string) *Signer {
	t.Helper()
	signer, err := NewSigner(secret, "dev")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return signer
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := newTestSigner(t, "test-secret")

	token, err := signer.Sign(Claims{Email: "a@example.com", RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "a@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := newTestSigner(t, "one").Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newTestSigner(t, "two").Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer := newTestSigner(t, "test-secret")
	past := time.Now().Add(-time.Hour)
	token, err := signer.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(past.Add(-time.Hour)),
		ExpiresAt: jwt.NewNumericDate(past),
	}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSignRequiresSubject(t *testing.T) {
	if _, err := newTestSigner(t, "test-secret").Sign(Claims{}); err == nil {
		t.Fatalf("expected error without subject")
	}
}

func TestNewSignerSecretRules(t *testing.T) {
	if _, err := NewSigner("", "production"); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret in production, got %v", err)
	}
	devToken, err := newTestSigner(t, "").Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	if err != nil {
		t.Fatalf("sign with dev fallback: %v", err)
	}
	if _, err := newTestSigner(t, devFallbackToken).Verify(devToken); err != nil {
		t.Fatalf("expected dev fallback secret to verify, got %v", err)
	}
}
