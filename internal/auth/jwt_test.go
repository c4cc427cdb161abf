package auth

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/phrazzld/postpilot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-that-is-32-chars-long"

func newTestService(t *testing.T, clk clock.Clock) TokenService {
	t.Helper()
	svc, err := NewTokenService(config.AuthConfig{JWTSecret: testSecret, TokenLifetime: time.Hour}, clk)
	require.NoError(t, err)
	return svc
}

func TestNewTokenService_RejectsWeakConfig(t *testing.T) {
	_, err := NewTokenService(config.AuthConfig{JWTSecret: "short", TokenLifetime: time.Hour}, nil)
	assert.Error(t, err)

	_, err = NewTokenService(config.AuthConfig{JWTSecret: testSecret}, nil)
	assert.Error(t, err)
}

func TestGenerateAndValidateToken(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clk)

	token, err := svc.GenerateToken(context.Background(), "ops")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, clk.Now().Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, clk.Now().Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
}

func TestGenerateToken_EmptySubject(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.GenerateToken(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptySubject)
}

func TestValidateToken_Failures(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clk)

	valid, err := svc.GenerateToken(context.Background(), "ops")
	require.NoError(t, err)

	other, err := NewTokenService(config.AuthConfig{
		JWTSecret:     "another-secret-that-is-32-chars-long!!",
		TokenLifetime: time.Hour,
	}, clk)
	require.NoError(t, err)
	foreign, err := other.GenerateToken(context.Background(), "ops")
	require.NoError(t, err)

	wrongType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		advance time.Duration
		wantErr error
	}{
		{name: "malformed", token: "not-a-token", wantErr: ErrInvalidToken},
		{name: "wrong signature", token: foreign, wantErr: ErrInvalidToken},
		{name: "wrong token type", token: wrongType, wantErr: ErrInvalidToken},
		{name: "expired", token: valid, advance: 2 * time.Hour, wantErr: ErrExpiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.advance > 0 {
				clk.Add(tt.advance)
				defer clk.Add(-tt.advance)
			}
			_, err := svc.ValidateToken(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateToken_ToleratesClockSkew(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clk)

	token, err := svc.GenerateToken(context.Background(), "ops")
	require.NoError(t, err)

	clk.Add(time.Hour + time.Minute)
	_, err = svc.ValidateToken(context.Background(), token)
	assert.NoError(t, err)
}
