// Package fakeplatform serves an in-process provisioning service and
// identity service with the same HTTP API as the real platform.
//
// It keeps all state in memory and announces identity mutations on an
// events.Bus. Tenants become ready for application assignment a configurable
// delay after the identity service is assigned, and one-time passwords accept
// a single login before they must be changed.
package fakeplatform

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantprov/internal/events"
	"github.com/wolfeidau/tenantprov/internal/models"
)

// Route prefixes of the two services.
const (
	ProvisionerPrefix = "/provisioner/v1"
	IdentityPrefix    = "/identity/v1"
)

// Config controls the behaviour of the platform.
type Config struct {
	// System credentials accepted by the provisioner.
	ClientID string
	Username string
	Secret   string

	// AdminUser is created in every tenant the identity service is assigned to.
	AdminUser string

	// ReadinessDelay is how long a tenant rejects application assignment after
	// the identity service is assigned to it.
	ReadinessDelay time.Duration

	// EventDelay postpones every confirmation event.
	EventDelay time.Duration

	TokenTTL   time.Duration
	SigningKey []byte
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "service-runner"
	}
	if c.Username == "" {
		c.Username = "wepemnefret"
	}
	if c.Secret == "" {
		c.Secret = "sandbox"
	}
	if c.AdminUser == "" {
		c.AdminUser = "antony"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = time.Hour
	}
	if len(c.SigningKey) == 0 {
		c.SigningKey = make([]byte, 32)
		_, _ = rand.Read(c.SigningKey)
	}
}

type user struct {
	password   string
	role       string
	mustChange bool
	logins     int
}

type tenant struct {
	tenant       models.Tenant
	identity     string
	readyAt      time.Time
	applications []string
	roles        map[string]models.Role
	users        map[string]*user
}

// Platform is the in-memory provisioning and identity service.
type Platform struct {
	cfg Config
	bus *events.Bus
	now func() time.Time

	mu           sync.Mutex
	applications map[string]models.Application
	tenants      map[string]*tenant
	revoked      map[string]bool
	suppressed   map[string]bool
	calls        []Call
}

// New creates an empty platform.
func New(cfg Config) *Platform {
	cfg.ApplyDefaults()

	return &Platform{
		cfg:          cfg,
		bus:          events.NewBus(),
		now:          time.Now,
		applications: make(map[string]models.Application),
		tenants:      make(map[string]*tenant),
		revoked:      make(map[string]bool),
		suppressed:   make(map[string]bool),
	}
}

// Events returns the bus confirmations are published on.
func (p *Platform) Events() *events.Bus {
	return p.bus
}

// SuppressEvent stops confirmations for operation in tenantID from being
// published. An empty tenantID suppresses the operation in every tenant.
func (p *Platform) SuppressEvent(operation, tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suppressed[suppressionKey(operation, tenantID)] = true
}

func suppressionKey(operation, tenantID string) string {
	return operation + "/" + tenantID
}

// Handler builds the HTTP handler serving both services.
func (p *Platform) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer, p.recordCalls)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Route(ProvisionerPrefix, func(pr chi.Router) {
		pr.Post("/auth/token", p.authenticate)

		pr.Group(func(sr chi.Router) {
			sr.Use(p.requireSystem)
			sr.Post("/applications", p.createApplication)
			sr.Post("/tenants", p.createTenant)
			sr.Post("/tenants/{id}/identityservice", p.assignIdentityManager)
			sr.Post("/tenants/{id}/applications", p.assignApplications)
			sr.Get("/tenants/{id}/applications", p.getAssignedApplications)
		})
	})

	r.Route(IdentityPrefix, func(ir chi.Router) {
		ir.Post("/token", p.login)

		ir.Group(func(ur chi.Router) {
			ur.Use(p.requireUser)
			ur.Put("/users/{id}/password", p.changePassword)
			ur.Post("/roles", p.createRole)
			ur.Post("/users", p.createUser)
			ur.Post("/token/_current/logout", p.logout)
		})
	})

	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (p *Platform) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return p.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done. ln is closed on return.
func (p *Platform) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           p.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("Sandbox platform listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// AssignedApplications returns the applications assigned to a tenant, in
// assignment order.
func (p *Platform) AssignedApplications(tenantID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tenants[tenantID]
	if !ok {
		return nil
	}
	return append([]string(nil), t.applications...)
}

// Role returns a role defined in a tenant.
func (p *Platform) Role(tenantID, roleID string) (models.Role, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tenants[tenantID]
	if !ok {
		return models.Role{}, false
	}
	role, ok := t.roles[roleID]
	return role, ok
}

// HasUser reports whether a user exists in a tenant.
func (p *Platform) HasUser(tenantID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tenants[tenantID]
	if !ok {
		return false
	}
	_, ok = t.users[userID]
	return ok
}

// publish announces a completed identity mutation unless it is suppressed.
func (p *Platform) publish(ev events.Event) {
	p.mu.Lock()
	suppressed := p.suppressed[suppressionKey(ev.Operation, "")] || p.suppressed[suppressionKey(ev.Operation, ev.Tenant)]
	p.mu.Unlock()

	if suppressed {
		log.Debug().Str("operation", ev.Operation).Str("entity", ev.Entity).Msg("confirmation suppressed")
		return
	}

	if p.cfg.EventDelay > 0 {
		time.AfterFunc(p.cfg.EventDelay, func() { p.bus.Publish(ev) })
		return
	}

	p.bus.Publish(ev)
}

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
