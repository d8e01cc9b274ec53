// Package auth verifies bearer credentials presented during the WebSocket
// handshake. Verification failure is non-fatal for callers: the gateway falls
// back to a guest principal instead of rejecting the connection.
package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Result carries the outcome of a credential check. Verified is false for
// absent, malformed, expired, or badly signed tokens; Claims is only
// populated when Verified is true.
type Result struct {
	Verified bool
	Claims   jwt.MapClaims
}

// Subject returns the canonical user id ("sub" claim) and whether it exists.
func (r Result) Subject() (string, bool) {
	if !r.Verified {
		return "", false
	}
	sub, err := r.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}

// Checker authorizes a raw Authorization header value.
type Checker interface {
	Authorize(authorization string) Result
}

// RS256Checker validates RS256-signed JWTs against a fixed public key.
type RS256Checker struct {
	publicKey *rsa.PublicKey
}

// NewRS256Checker parses a PEM-encoded RSA public key.
func NewRS256Checker(publicKeyPEM []byte) (*RS256Checker, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
	}
	return &RS256Checker{publicKey: key}, nil
}

// NewRS256CheckerFromFile reads the public key from a PEM file.
func NewRS256CheckerFromFile(path string) (*RS256Checker, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	return NewRS256Checker(pem)
}

// Authorize checks a "Bearer <token>" header value. Any parse or signature
// failure yields an unverified Result, never an error.
func (c *RS256Checker) Authorize(authorization string) Result {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return Result{}
	}

	scheme, token, found := strings.Cut(authorization, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return Result{}
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil || !parsed.Valid {
		return Result{}
	}

	return Result{Verified: true, Claims: claims}
}

// GuestOnly is a Checker that never verifies. Used when no public key is
// configured: every connection becomes a guest principal.
type GuestOnly struct{}

func (GuestOnly) Authorize(string) Result { return Result{} }
