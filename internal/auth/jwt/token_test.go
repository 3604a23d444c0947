package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewManager(TokenConfig{AccessSecret: []byte("secret")})

	token, err := m.GenerateAccessToken(User{ID: "user-1", DisplayName: "Ana"})
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Ana", claims.DisplayName)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	issuer := NewManager(TokenConfig{AccessSecret: []byte("one")})
	verifier := NewManager(TokenConfig{AccessSecret: []byte("two")})

	token, err := issuer.GenerateAccessToken(User{ID: "user-1"})
	require.NoError(t, err)

	_, err = verifier.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	m := NewManager(TokenConfig{AccessSecret: []byte("secret"), AccessTTL: -time.Minute})

	token, err := m.GenerateAccessToken(User{ID: "user-1"})
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateGarbage(t *testing.T) {
	m := NewManager(TokenConfig{AccessSecret: []byte("secret")})
	_, err := m.ValidateAccessToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
