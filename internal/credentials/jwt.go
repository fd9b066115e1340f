package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// NewToken wraps a bearer token returned by a service. When the token is a JWT
// its exp claim populates Expiry. The signature is not verified: validity is
// enforced by the issuing service, the expiry is only used to refuse entering a
// scope with a token that has already lapsed.
func NewToken(raw string) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken: raw,
		TokenType:   "Bearer",
	}

	if expiry, ok := expiryOf(raw); ok {
		token.Expiry = expiry
	}

	return token
}

// NewTokenWithExpiry wraps a bearer token with an expiry reported out of band.
// A JWT exp claim, when present, takes precedence.
func NewTokenWithExpiry(raw string, expiry time.Time) *oauth2.Token {
	token := NewToken(raw)
	if token.Expiry.IsZero() {
		token.Expiry = expiry
	}
	return token
}

func expiryOf(raw string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}
