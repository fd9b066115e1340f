package fakeplatform

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/wolfeidau/tenantprov/internal/credentials"
)

// Call is one request the platform served.
type Call struct {
	Service string // "provisioner" or "identity"
	Method  string
	Route   string // chi route pattern, e.g. /provisioner/v1/tenants/{id}/applications
	Tenant  string
	Status  int
	At      time.Time
}

// Is reports whether c was a call of method on route.
func (c Call) Is(method, route string) bool {
	return c.Method == method && c.Route == route
}

func (p *Platform) recordCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		tenantID := r.Header.Get(credentials.TenantHeader)
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
			if id := rctx.URLParam("id"); id != "" && strings.HasPrefix(route, ProvisionerPrefix) {
				tenantID = id
			}
		}

		service := ""
		switch {
		case strings.HasPrefix(route, ProvisionerPrefix):
			service = "provisioner"
		case strings.HasPrefix(route, IdentityPrefix):
			service = "identity"
		}

		p.mu.Lock()
		p.calls = append(p.calls, Call{
			Service: service,
			Method:  r.Method,
			Route:   route,
			Tenant:  tenantID,
			Status:  ww.Status(),
			At:      p.now(),
		})
		p.mu.Unlock()
	})
}

// Calls returns every call served so far, oldest first.
func (p *Platform) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsFor returns the calls that targeted a tenant.
func (p *Platform) CallsFor(tenantID string) []Call {
	var calls []Call
	for _, c := range p.Calls() {
		if c.Tenant == tenantID {
			calls = append(calls, c)
		}
	}
	return calls
}
