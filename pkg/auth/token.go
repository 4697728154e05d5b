// Package auth signs and verifies the shopper session cookie.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

var (
	signingMethod = jwt.SigningMethodHS256

	errNoSecret  = errors.New("session secret is required")
	errNoSession = errors.New("session token missing sid")
)

// SessionClaims is the cookie payload. The session id keys both the cart and
// the checkout state.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionSigner mints and verifies HS256 session tokens for one configuration.
type SessionSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionSigner(cfg config.SessionConfig) *SessionSigner {
	return &SessionSigner{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
}

// NewSessionID returns a fresh opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Mint signs a token for sessionID issued at issuedAt.
func (s *SessionSigner) Mint(issuedAt time.Time, sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	switch {
	case len(s.secret) == 0:
		return "", errNoSecret
	case s.ttl <= 0:
		return "", errors.New("session ttl must be positive")
	case sessionID == "":
		return "", errors.New("session id is required")
	}

	signed, err := jwt.NewWithClaims(signingMethod, SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and expiry and returns the claims.
func (s *SessionSigner) Parse(token string) (*SessionClaims, error) {
	if len(s.secret) == 0 {
		return nil, errNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	claims := &SessionClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.SessionID) == "" {
		return nil, errNoSession
	}
	return claims, nil
}
