package client

import (
	"net/http"

	"github.com/wolfeidau/tenantprov/internal/credentials"
	"github.com/wolfeidau/tenantprov/internal/logger"
)

// NewHTTPClient creates an HTTP client whose transport applies the credential
// scope of each request context and logs every call. Responses are never
// cached.
func NewHTTPClient(config Config) *http.Client {
	base := config.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: credentials.NewTransport(logger.NewRequests(config.Logger, base)),
	}
}
