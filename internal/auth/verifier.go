package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret required")
	ErrMissingIssuer        = errors.New("auth: issuer required")
	ErrMissingCredential    = errors.New("auth: credential required")
	ErrExpiredCredential    = errors.New("auth: credential expired")
	ErrInvalidCredential    = errors.New("auth: invalid credential")
)

// Identity is the authenticated principal attached to a connection for its lifetime.
type Identity struct {
	UserID string
	Email  string
}

// AccessClaims mirrors the JWT payload issued by the Tessera auth service.
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// VerifierConfig describes how to validate access tokens presented at handshake.
type VerifierConfig struct {
	SigningSecret []byte
	Issuer        string
	Clock         func() time.Time
}

// Verifier validates HS256 access tokens against the shared signing secret.
// It runs once per connection, before any room operation is permitted.
type Verifier struct {
	signingSecret []byte
	issuer        string
	clock         func() time.Time
}

// NewVerifier constructs a Verifier with the provided configuration.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		clock:         clock,
	}, nil
}

// Verify validates the supplied credential and returns the authenticated identity.
// The three failure modes are distinct so clients can tell "log in again" apart
// from "retry silently".
func (v *Verifier) Verify(credential string) (Identity, error) {
	token := strings.TrimSpace(credential)
	if token == "" {
		return Identity{}, ErrMissingCredential
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidCredential, t.Method.Alg())
			}
			return v.signingSecret, nil
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredCredential
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if parsed == nil || !parsed.Valid {
		return Identity{}, ErrInvalidCredential
	}
	if claims.Issuer != v.issuer {
		return Identity{}, ErrInvalidCredential
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Identity{}, fmt.Errorf("%w: subject required", ErrInvalidCredential)
	}
	return Identity{
		UserID: subject,
		Email:  strings.TrimSpace(claims.Email),
	}, nil
}
