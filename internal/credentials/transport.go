package credentials

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	// TenantHeader selects the tenant an identity call targets.
	TenantHeader = "X-Tenant-Identifier"

	// UserHeader names the user a bearer token was issued to.
	UserHeader = "User"
)

// Transport applies the credential found in the request context to outgoing
// requests. Requests made outside any scope are sent unchanged.
type Transport struct {
	Base http.RoundTripper
}

// NewTransport wraps base, which defaults to http.DefaultTransport.
func NewTransport(base http.RoundTripper) *Transport {
	return &Transport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	cred, ok := FromContext(req.Context())
	if !ok {
		return t.base().RoundTrip(req)
	}

	// RoundTrip must not modify the caller's request
	req = req.Clone(req.Context())

	if cred.HasToken() {
		cred.Token.SetAuthHeader(req)
	}
	if cred.Tenant != "" {
		req.Header.Set(TenantHeader, cred.Tenant)
	}
	if cred.User != "" {
		req.Header.Set(UserHeader, cred.User)
	}

	log.Debug().
		Str("kind", string(cred.Kind)).
		Str("tenant", cred.Tenant).
		Str("user", cred.User).
		Str("path", req.URL.Path).
		Msg("applied credential")

	return t.base().RoundTrip(req)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
