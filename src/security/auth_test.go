// backend/src/security/auth_test.go
package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(testSecret, time.Hour, 24*time.Hour)

	token, err := svc.GenerateToken("42")
	require.NoError(t, err)

	subject, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "42", subject)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(testSecret, time.Hour, 24*time.Hour)

	token, err := svc.GenerateRefreshToken("42")
	require.NoError(t, err)

	subject, err := svc.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "42", subject)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	svc := NewAuthService(testSecret, time.Hour, 24*time.Hour)

	access, err := svc.GenerateToken("42")
	require.NoError(t, err)
	refresh, err := svc.GenerateRefreshToken("42")
	require.NoError(t, err)

	_, err = svc.ValidateToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh token must not authenticate API requests")

	_, err = svc.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken, "access token must not pass the refresh exchange")
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewAuthService(testSecret, -time.Minute, -time.Minute)

	token, err := svc.GenerateToken("42")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService(testSecret, time.Hour, 24*time.Hour)
	verifier := NewAuthService("another-secret-another-secret-xx", time.Hour, 24*time.Hour)

	token, err := issuer.GenerateToken("42")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(testSecret, time.Hour, 24*time.Hour)
	_, err := svc.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}
