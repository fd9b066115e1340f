package fakeplatform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantprov/internal/credentials"
)

const (
	kindSystem = "system"
	kindUser   = "user"

	issuer = "tenantprov-sandbox"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errRevokedToken = errors.New("token revoked")
)

// tokenClaims are the claims of every token the platform issues.
type tokenClaims struct {
	jwt.RegisteredClaims
	Kind   string `json:"knd"`
	Tenant string `json:"tnt,omitempty"`

	// PasswordChange marks a session opened with a one-time password; it may
	// only change that password.
	PasswordChange bool `json:"pwc,omitempty"`
}

// Principal is the verified caller of a request.
type Principal struct {
	Kind           string
	Subject        string
	Tenant         string
	TokenID        string
	PasswordChange bool
}

type contextKey int

const principalContextKey contextKey = iota

func principalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}

// issueToken signs a token for subject valid for the configured TTL.
func (p *Platform) issueToken(kind, subject, tenant string, passwordChange bool) (string, time.Time, error) {
	now := p.now()
	expiresAt := now.Add(p.cfg.TokenTTL)

	claims := &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind:           kind,
		Tenant:         tenant,
		PasswordChange: passwordChange,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// verifyToken checks the signature, expiry and revocation of a bearer token.
func (p *Platform) verifyToken(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, errMissingToken
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return p.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	revoked := p.revoked[claims.ID]
	p.mu.Unlock()

	if revoked {
		return nil, errRevokedToken
	}

	return &Principal{
		Kind:           claims.Kind,
		Subject:        claims.Subject,
		Tenant:         claims.Tenant,
		TokenID:        claims.ID,
		PasswordChange: claims.PasswordChange,
	}, nil
}

// requireSystem admits requests carrying a system token.
func (p *Platform) requireSystem(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := p.verifyToken(extractBearerToken(r))
		if err != nil || principal.Kind != kindSystem {
			log.Debug().Err(err).Msg("rejected system call")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser admits requests carrying a user token issued for the tenant and
// user named in the request headers.
func (p *Platform) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := p.verifyToken(extractBearerToken(r))
		if err != nil || principal.Kind != kindUser {
			log.Debug().Err(err).Msg("rejected user call")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if principal.Tenant != r.Header.Get(credentials.TenantHeader) || principal.Subject != r.Header.Get(credentials.UserHeader) {
			writeError(w, http.StatusForbidden, "token does not match tenant or user")
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
