package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "citylore")

	token, err := manager.Generate("admin@citylore.example", "admin")
	require.NoError(t, err)

	claims, err := manager.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@citylore.example", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "citylore", claims.Issuer)
}

func TestGenerateRejectsEmptyIdentity(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "citylore")

	_, err := manager.Generate("", "admin")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = manager.Generate("admin@citylore.example", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejections(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "citylore")

	_, err := manager.Validate("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = manager.Validate("   ")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = manager.Validate("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Signed under a different secret.
	other := NewJWTManager("other-secret", time.Hour, "citylore")
	token, err := other.Generate("admin@citylore.example", "admin")
	require.NoError(t, err)
	_, err = manager.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Same secret, wrong issuer.
	foreign := NewJWTManager("test-secret", time.Hour, "someone-else")
	token, err = foreign.Generate("admin@citylore.example", "admin")
	require.NoError(t, err)
	_, err = manager.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", -time.Minute, "citylore")
	token, err := manager.Generate("admin@citylore.example", "admin")
	require.NoError(t, err)

	_, err = manager.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenFromHeader(t *testing.T) {
	token, err := TokenFromHeader("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	// Scheme comparison is case-insensitive.
	token, err = TokenFromHeader("bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	for _, header := range []string{"", "abc.def.ghi", "Basic dXNlcjpwYXNz", "Bearer"} {
		_, err := TokenFromHeader(header)
		assert.ErrorIs(t, err, ErrMissingToken, header)
	}
}
