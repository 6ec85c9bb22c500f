// Package auth issues and verifies bearer tokens and turns them into the
// caller identity the lifecycle manager works with.
package auth

import (
	"errors"
	"fmt"
	"time"

	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// Claims are the JWT claims carried by a bearer token.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts the claims into a caller identity.
func (c *Claims) Actor() models.Actor {
	return models.Actor{UserID: c.Subject, Role: c.Role}
}

// TokenService signs and verifies HS256 tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService builds a TokenService from configuration.
func NewTokenService(cfg config.Auth) *TokenService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = config.DefaultTokenTTL
	}
	return &TokenService{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for user.
func (s *TokenService) Issue(user *models.User) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses and validates a signed token.
func (s *TokenService) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or id", ErrInvalidToken)
	}
	if _, ok := models.ParseRole(string(claims.Role)); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}
