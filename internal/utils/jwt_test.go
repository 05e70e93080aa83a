package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "registry-idp")

	token, err := m.GenerateJWT("acct-1", "juan@example.ph", RoleAdmin, time.Minute)
	require.NoError(t, err)

	claims, err := m.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID())
	assert.Equal(t, "juan@example.ph", claims.Email)
	assert.True(t, claims.IsAdmin())
}

func TestJWTRejectsBadTokens(t *testing.T) {
	m := NewJWTManager("secret", "registry-idp")

	expired, err := m.GenerateJWT("acct-1", "", RoleResident, -time.Minute)
	require.NoError(t, err)
	_, err = m.ValidateJWT(expired)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	foreign, err := NewJWTManager("other", "registry-idp").GenerateJWT("acct-1", "", RoleResident, time.Minute)
	require.NoError(t, err)
	_, err = m.ValidateJWT(foreign)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	wrongIssuer, err := NewJWTManager("secret", "elsewhere").GenerateJWT("acct-1", "", RoleResident, time.Minute)
	require.NoError(t, err)
	_, err = m.ValidateJWT(wrongIssuer)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	badRole, err := m.GenerateJWT("acct-1", "", "superuser", time.Minute)
	require.NoError(t, err)
	_, err = m.ValidateJWT(badRole)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
