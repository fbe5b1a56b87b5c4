package service

import (
	"errors"
	"testing"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/config"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters!!"

func TestAuthService_MintToken(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: testSecret, JWTExpirationHours: 24})

	resp, err := svc.MintToken(dto.MintTokenRequest{Subject: "tilda-webhook", Role: RoleIngestor, TTLHours: 2})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, 7200, resp.ExpiresIn)

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(resp.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	require.True(t, tok.Valid)
	assert.Equal(t, "tilda-webhook", claims["sub"])
	assert.Equal(t, RoleIngestor, claims["role"])
	assert.NotEmpty(t, claims["jti"])
}

func TestAuthService_MintTokenRejects(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: testSecret, JWTExpirationHours: 24})

	_, err := svc.MintToken(dto.MintTokenRequest{Subject: "x", Role: "root"})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = svc.MintToken(dto.MintTokenRequest{Role: RoleReporter})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	noSecret := NewAuthService(&config.Config{JWTExpirationHours: 24})
	_, err = noSecret.MintToken(dto.MintTokenRequest{Subject: "x", Role: RoleAdmin})
	assert.Error(t, err)
}
