// Package credentials carries the active authorization identity through a
// context.Context.
//
// A credential is installed for the duration of a function with SystemScope,
// TenantScope or UserScope. Scopes nest: an inner scope starts from the
// enclosing credential and overrides only what it sets. The caller's context is
// never modified, so when the function returns, whether normally, with an error
// or by panicking, the enclosing credential is what remains in effect.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// Sentinel errors
var (
	// ErrEmptyToken is returned when a scope is entered without a bearer token.
	ErrEmptyToken = errors.New("empty bearer token")

	// ErrTokenExpired is returned when a scope is entered with an expired token.
	ErrTokenExpired = errors.New("bearer token expired")

	// ErrEmptyTenant is returned when a tenant scope is entered without a tenant.
	ErrEmptyTenant = errors.New("empty tenant identifier")
)

// Kind identifies who a credential speaks for.
type Kind string

const (
	KindNone   Kind = ""
	KindSystem Kind = "system"
	KindUser   Kind = "user"
)

// Credential is the authorization identity applied to outgoing API calls.
type Credential struct {
	Kind   Kind
	Token  *oauth2.Token
	Tenant string
	User   string
}

// HasToken reports whether the credential carries a bearer token.
func (c Credential) HasToken() bool {
	return c.Token != nil && c.Token.AccessToken != ""
}

type contextKey string

const credentialContextKey contextKey = "credential"

// FromContext returns the credential installed in ctx.
func FromContext(ctx context.Context) (Credential, bool) {
	cred, ok := ctx.Value(credentialContextKey).(Credential)
	return cred, ok
}

// SystemScope runs fn with a system-level token. Any user identity of the
// enclosing scope is dropped; the tenant selector is kept.
func SystemScope(ctx context.Context, token *oauth2.Token, fn func(context.Context) error) error {
	if err := checkToken(token); err != nil {
		return fmt.Errorf("failed to enter system scope: %w", err)
	}

	cred, _ := FromContext(ctx)
	cred.Kind = KindSystem
	cred.Token = token
	cred.User = ""

	return fn(context.WithValue(ctx, credentialContextKey, cred))
}

// TenantScope runs fn with tenant selected as the target of identity calls.
// The enclosing token, if any, is kept.
func TenantScope(ctx context.Context, tenant string, fn func(context.Context) error) error {
	if tenant == "" {
		return ErrEmptyTenant
	}

	cred, _ := FromContext(ctx)
	cred.Tenant = tenant

	return fn(context.WithValue(ctx, credentialContextKey, cred))
}

// UserScope runs fn authenticated as user within the enclosing tenant.
func UserScope(ctx context.Context, user string, token *oauth2.Token, fn func(context.Context) error) error {
	if err := checkToken(token); err != nil {
		return fmt.Errorf("failed to enter user scope for %s: %w", user, err)
	}

	cred, _ := FromContext(ctx)
	cred.Kind = KindUser
	cred.Token = token
	cred.User = user

	return fn(context.WithValue(ctx, credentialContextKey, cred))
}

func checkToken(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return ErrEmptyToken
	}
	if !token.Valid() {
		return ErrTokenExpired
	}
	return nil
}
