package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/config"
	"github.com/phrazzld/postpilot/internal/platform/logger"
)

const tokenType = "operator"

// TokenService issues and validates operator access tokens.
type TokenService interface {
	// GenerateToken creates a signed token for subject.
	GenerateToken(ctx context.Context, subject string) (string, error)

	// ValidateToken checks the signature and lifetime of token and returns
	// its claims.
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Claims are the validated contents of a token.
type Claims struct {
	Subject   string    `json:"sub"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	ID        string    `json:"jti"`
}

type jwtClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// hmacTokenService signs tokens with HMAC-SHA256.
type hmacTokenService struct {
	signingKey []byte
	lifetime   time.Duration
	clock      clock.Clock
	clockSkew  time.Duration
}

var _ TokenService = (*hmacTokenService)(nil)

// NewTokenService creates a TokenService from the auth configuration. A nil
// clock uses the wall clock.
func NewTokenService(cfg config.AuthConfig, clk clock.Clock) (TokenService, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	if cfg.TokenLifetime <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &hmacTokenService{
		signingKey: []byte(cfg.JWTSecret),
		lifetime:   cfg.TokenLifetime,
		clock:      clk,
		clockSkew:  2 * time.Minute,
	}, nil
}

// GenerateToken implements TokenService.
func (s *hmacTokenService) GenerateToken(ctx context.Context, subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", ErrEmptySubject
	}
	now := s.clock.Now()

	claims := jwtClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		logger.FromContext(ctx).Error("failed to sign token", "error", err, "subject", subject)
		return "", fmt.Errorf("failed to sign token with HMAC-SHA256: %w", err)
	}
	return signed, nil
}

// ValidateToken implements TokenService.
func (s *hmacTokenService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContext(ctx)
	now := s.clock.Now()

	token, err := jwt.ParseWithClaims(
		tokenString,
		&jwtClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: expired")
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("token validation failed: not yet valid")
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token validation failed", "error", err, "error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid || claims.TokenType != tokenType || claims.Subject == "" {
		log.Debug("token validation failed: unexpected claims")
		return nil, ErrInvalidToken
	}

	return &Claims{
		Subject:   claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		ID:        claims.ID,
	}, nil
}
