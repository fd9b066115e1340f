package fakeplatform

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfeidau/tenantprov/internal/credentials"
	"github.com/wolfeidau/tenantprov/internal/events"
	"github.com/wolfeidau/tenantprov/internal/models"
)

const timeFormat = time.RFC3339

type authentication struct {
	AccessToken           string `json:"accessToken"`
	AccessTokenExpiration string `json:"accessTokenExpiration"`
}

func decodePassword(encoded string) (string, bool) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// identityTenant returns the tenant selected by the request header if the
// identity service is assigned to it. The caller must hold p.mu.
func (p *Platform) identityTenant(r *http.Request) (*tenant, int) {
	tenantID := r.Header.Get(credentials.TenantHeader)
	if tenantID == "" {
		return nil, http.StatusBadRequest
	}

	t, ok := p.tenants[tenantID]
	if !ok || t.identity == "" {
		return nil, http.StatusNotFound
	}

	return t, 0
}

// login issues a user token. A user whose password must be changed gets a
// single login, and that session may only change the password.
func (p *Platform) login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("grant_type") != "password" {
		writeError(w, http.StatusBadRequest, "unsupported grant type")
		return
	}

	password, ok := decodePassword(q.Get("password"))
	if !ok {
		writeError(w, http.StatusBadRequest, "password must be base64 encoded")
		return
	}

	p.mu.Lock()
	t, status := p.identityTenant(r)
	if t == nil {
		p.mu.Unlock()
		writeError(w, status, "unknown tenant")
		return
	}

	username := q.Get("username")
	u, ok := t.users[username]
	if !ok || u.password != password || (u.mustChange && u.logins > 0) {
		p.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "bad credentials")
		return
	}
	u.logins++
	passwordChange := u.mustChange
	tenantID := t.tenant.Identifier
	p.mu.Unlock()

	token, expiresAt, err := p.issueToken(kindUser, username, tenantID, passwordChange)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, authentication{
		AccessToken:           token,
		AccessTokenExpiration: expiresAt.UTC().Format(timeFormat),
	})
}

func (p *Platform) changePassword(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	userID := chi.URLParam(r, "id")

	if principal.Subject != userID && principal.PasswordChange {
		writeError(w, http.StatusForbidden, "password change session")
		return
	}

	var body models.Password
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid password")
		return
	}
	password, ok := decodePassword(body.Password)
	if !ok || password == "" {
		writeError(w, http.StatusBadRequest, "password must be base64 encoded")
		return
	}

	p.mu.Lock()
	t, status := p.identityTenant(r)
	if t == nil {
		p.mu.Unlock()
		writeError(w, status, "unknown tenant")
		return
	}

	u, ok := t.users[userID]
	if !ok {
		p.mu.Unlock()
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	u.password = password
	u.mustChange = false
	u.logins = 0
	tenantID := t.tenant.Identifier
	p.mu.Unlock()

	p.publish(events.Event{Operation: events.OperationPutUserPassword, Entity: userID, Tenant: tenantID})

	w.WriteHeader(http.StatusAccepted)
}

func (p *Platform) createRole(w http.ResponseWriter, r *http.Request) {
	if principalFromContext(r.Context()).PasswordChange {
		writeError(w, http.StatusForbidden, "password change session")
		return
	}

	var role models.Role
	if err := decodeJSON(r, &role); err != nil || role.Identifier == "" {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	p.mu.Lock()
	t, status := p.identityTenant(r)
	if t == nil {
		p.mu.Unlock()
		writeError(w, status, "unknown tenant")
		return
	}
	if _, exists := t.roles[role.Identifier]; exists {
		p.mu.Unlock()
		writeError(w, http.StatusConflict, "role already exists")
		return
	}
	t.roles[role.Identifier] = role
	tenantID := t.tenant.Identifier
	p.mu.Unlock()

	p.publish(events.Event{Operation: events.OperationPostRole, Entity: role.Identifier, Tenant: tenantID})

	w.WriteHeader(http.StatusAccepted)
}

func (p *Platform) createUser(w http.ResponseWriter, r *http.Request) {
	if principalFromContext(r.Context()).PasswordChange {
		writeError(w, http.StatusForbidden, "password change session")
		return
	}

	var body models.UserWithPassword
	if err := decodeJSON(r, &body); err != nil || body.Identifier == "" {
		writeError(w, http.StatusBadRequest, "invalid user")
		return
	}
	password, ok := decodePassword(body.Password)
	if !ok || password == "" {
		writeError(w, http.StatusBadRequest, "password must be base64 encoded")
		return
	}

	p.mu.Lock()
	t, status := p.identityTenant(r)
	if t == nil {
		p.mu.Unlock()
		writeError(w, status, "unknown tenant")
		return
	}
	if _, exists := t.roles[body.Role]; !exists {
		p.mu.Unlock()
		writeError(w, http.StatusNotFound, "role not found")
		return
	}
	if _, exists := t.users[body.Identifier]; exists {
		p.mu.Unlock()
		writeError(w, http.StatusConflict, "user already exists")
		return
	}
	t.users[body.Identifier] = &user{password: password, role: body.Role, mustChange: true}
	tenantID := t.tenant.Identifier
	p.mu.Unlock()

	p.publish(events.Event{Operation: events.OperationPostUser, Entity: body.Identifier, Tenant: tenantID})

	w.WriteHeader(http.StatusAccepted)
}

func (p *Platform) logout(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())

	p.mu.Lock()
	p.revoked[principal.TokenID] = true
	p.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}
