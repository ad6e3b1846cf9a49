// Package auth issues and verifies the bearer tokens hosts use to drive their
// sessions.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token is expired")
)

// HostClaims identifies the host a token was issued to.
type HostClaims struct {
	HostID string `json:"host_id"`
	jwt.RegisteredClaims
}

// JWTService signs and parses host tokens with a shared HMAC secret.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	clock  clockwork.Clock
}

// NewJWTService creates a token service. A non-positive ttl defaults to 12h.
func NewJWTService(secret string, ttl time.Duration, issuer string, clock clockwork.Clock) (*JWTService, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JWTService{secret: []byte(secret), ttl: ttl, issuer: issuer, clock: clock}, nil
}

// Issue returns a signed token for hostID.
func (s *JWTService) Issue(hostID uuid.UUID) (string, error) {
	now := s.clock.Now()
	claims := &HostClaims{
		HostID: hostID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   hostID.String(),
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

// Verify checks the signature and expiry of token and returns its host id.
func (s *JWTService) Verify(token string) (uuid.UUID, error) {
	claims := &HostClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return uuid.Nil, ErrExpiredToken
		}
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return uuid.Nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}

	hostID, err := uuid.Parse(claims.HostID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad host_id claim", ErrInvalidToken)
	}
	return hostID, nil
}
