// Package auth issues and verifies the HS256 session tokens the gateway
// accepts, and hashes account passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// DefaultTTL matches the lifetime of tokens issued by the login service.
const DefaultTTL = 60 * time.Minute

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(token string) (int64, error)
}

// Tokens issues tokens and verifies them. Signer implements it.
type Tokens interface {
	Authenticator
	Issue(userID int64, subject string) (string, error)
}

// Claims is the token payload. UserID is required.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Signer issues and verifies tokens with a shared secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. A zero ttl falls back to DefaultTTL.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("auth: secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for userID.
func (s *Signer) Issue(userID int64, subject string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Authenticate implements Authenticator.
func (s *Signer) Authenticate(token string) (int64, error) {
	if token == "" {
		return 0, ErrUnauthorized
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.UserID == 0 {
		return 0, fmt.Errorf("%w: token has no user_id", ErrUnauthorized)
	}
	return claims.UserID, nil
}
