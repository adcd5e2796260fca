package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testIssuer = "tessera-auth"

var testSecret = []byte("gateway-test-secret")

func mintToken(t *testing.T, secret []byte, issuer, subject, email string, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	claims := AccessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func newTestVerifier(t *testing.T, clock func() time.Time) *Verifier {
	t.Helper()
	verifier, err := NewVerifier(VerifierConfig{
		SigningSecret: testSecret,
		Issuer:        testIssuer,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return verifier
}

func TestVerifierAcceptsValidCredential(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(t, func() time.Time { return now })

	token := mintToken(t, testSecret, testIssuer, "user-7", "ada@example.com", now, 30*time.Minute)
	identity, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("expected verification success: %v", err)
	}
	if identity.UserID != "user-7" {
		t.Fatalf("unexpected user id %s", identity.UserID)
	}
	if identity.Email != "ada@example.com" {
		t.Fatalf("unexpected email %s", identity.Email)
	}
}

func TestVerifierRejectsMissingCredential(t *testing.T) {
	verifier := newTestVerifier(t, time.Now)

	_, err := verifier.Verify("   ")
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestVerifierRejectsExpiredCredential(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := issuedAt.Add(2 * time.Hour)
	verifier := newTestVerifier(t, func() time.Time { return now })

	token := mintToken(t, testSecret, testIssuer, "user-7", "", issuedAt, 30*time.Minute)
	_, err := verifier.Verify(token)
	if !errors.Is(err, ErrExpiredCredential) {
		t.Fatalf("expected ErrExpiredCredential, got %v", err)
	}
}

func TestVerifierRejectsBadSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(t, func() time.Time { return now })

	token := mintToken(t, []byte("some-other-secret"), testIssuer, "user-7", "", now, 30*time.Minute)
	_, err := verifier.Verify(token)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestVerifierRejectsWrongIssuer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(t, func() time.Time { return now })

	token := mintToken(t, testSecret, "someone-else", "user-7", "", now, 30*time.Minute)
	_, err := verifier.Verify(token)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestVerifierRejectsMissingSubject(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(t, func() time.Time { return now })

	token := mintToken(t, testSecret, testIssuer, "", "ada@example.com", now, 30*time.Minute)
	_, err := verifier.Verify(token)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestNewVerifierRequiresSecretAndIssuer(t *testing.T) {
	_, err := NewVerifier(VerifierConfig{Issuer: testIssuer})
	if !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected ErrMissingSigningSecret, got %v", err)
	}

	_, err = NewVerifier(VerifierConfig{SigningSecret: testSecret, Issuer: "  "})
	if !errors.Is(err, ErrMissingIssuer) {
		t.Fatalf("expected ErrMissingIssuer, got %v", err)
	}
}
