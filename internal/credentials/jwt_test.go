package credentials

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   "antony",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key-min-32-bytes-long"))
	require.NoError(t, err)

	return raw
}

func TestNewToken_ReadsExpiry(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)

	token := NewToken(signedToken(t, expiresAt))

	assert.Equal(t, "Bearer", token.TokenType)
	assert.True(t, token.Expiry.Equal(expiresAt))
	assert.True(t, token.Valid())
}

func TestNewToken_Expired(t *testing.T) {
	token := NewToken(signedToken(t, time.Now().Add(-time.Hour)))
	assert.False(t, token.Valid())
}

func TestNewToken_Opaque(t *testing.T) {
	token := NewToken("not-a-jwt")

	assert.Equal(t, "not-a-jwt", token.AccessToken)
	assert.True(t, token.Expiry.IsZero())
	assert.True(t, token.Valid())
}

func TestNewTokenWithExpiry(t *testing.T) {
	reported := time.Now().Add(10 * time.Minute)

	opaque := NewTokenWithExpiry("not-a-jwt", reported)
	assert.True(t, opaque.Expiry.Equal(reported))

	claimed := time.Now().Add(time.Hour).Truncate(time.Second)
	jwtToken := NewTokenWithExpiry(signedToken(t, claimed), reported)
	assert.True(t, jwtToken.Expiry.Equal(claimed))
}
