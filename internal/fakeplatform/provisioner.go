package fakeplatform

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantprov/internal/models"
)

type authenticationResponse struct {
	Token                 string `json:"token"`
	AccessTokenExpiration string `json:"accessTokenExpiration"`
}

func (p *Platform) authenticate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("grant_type") != "password" {
		writeError(w, http.StatusBadRequest, "unsupported grant type")
		return
	}

	if q.Get("client_id") != p.cfg.ClientID || q.Get("username") != p.cfg.Username || q.Get("password") != p.cfg.Secret {
		writeError(w, http.StatusUnauthorized, "bad credentials")
		return
	}

	token, expiresAt, err := p.issueToken(kindSystem, q.Get("username"), "", false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, authenticationResponse{
		Token:                 token,
		AccessTokenExpiration: expiresAt.UTC().Format(timeFormat),
	})
}

func (p *Platform) createApplication(w http.ResponseWriter, r *http.Request) {
	var app models.Application
	if err := decodeJSON(r, &app); err != nil || app.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid application")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.applications[app.Name]; exists {
		writeError(w, http.StatusConflict, "application already exists")
		return
	}
	p.applications[app.Name] = app

	w.WriteHeader(http.StatusAccepted)
}

func (p *Platform) createTenant(w http.ResponseWriter, r *http.Request) {
	var t models.Tenant
	if err := decodeJSON(r, &t); err != nil || t.Identifier == "" {
		writeError(w, http.StatusBadRequest, "invalid tenant")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.tenants[t.Identifier]; exists {
		writeError(w, http.StatusConflict, "tenant already exists")
		return
	}

	p.tenants[t.Identifier] = &tenant{
		tenant: t,
		roles:  make(map[string]models.Role),
		users:  make(map[string]*user),
	}

	w.WriteHeader(http.StatusAccepted)
}

func (p *Platform) assignIdentityManager(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	var app models.AssignedApplication
	if err := decodeJSON(r, &app); err != nil || app.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid application")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tenants[tenantID]
	if !ok {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	if _, ok := p.applications[app.Name]; !ok {
		writeError(w, http.StatusNotFound, "application not found")
		return
	}
	if t.identity != "" {
		writeError(w, http.StatusConflict, "identity manager already assigned")
		return
	}

	password := uuid.NewString()

	t.identity = app.Name
	t.readyAt = p.now().Add(p.cfg.ReadinessDelay)
	t.applications = append(t.applications, app.Name)
	t.users[p.cfg.AdminUser] = &user{password: password, mustChange: true}

	log.Debug().Str("tenant", tenantID).Str("application", app.Name).Msg("identity manager assigned")

	writeJSON(w, http.StatusOK, models.IdentityManagerInitialization{AdminPassword: password})
}

func (p *Platform) assignApplications(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	var apps []models.AssignedApplication
	if err := decodeJSON(r, &apps); err != nil {
		writeError(w, http.StatusBadRequest, "invalid application list")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tenants[tenantID]
	if !ok {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	if t.identity == "" {
		writeError(w, http.StatusPreconditionFailed, "identity manager not assigned")
		return
	}
	if p.now().Before(t.readyAt) {
		writeError(w, http.StatusPreconditionFailed, "tenant not ready")
		return
	}

	for _, app := range apps {
		if _, ok := p.applications[app.Name]; !ok {
			writeError(w, http.StatusNotFound, "application not found: "+app.Name)
			return
		}
	}

	for _, app := range apps {
		if !contains(t.applications, app.Name) {
			t.applications = append(t.applications, app.Name)
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

func (p *Platform) getAssignedApplications(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	p.mu.Lock()
	t, ok := p.tenants[tenantID]
	var names []string
	if ok {
		names = append(names, t.applications...)
	}
	p.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}

	writeJSON(w, http.StatusOK, models.AssignedApplicationsFor(names...))
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
