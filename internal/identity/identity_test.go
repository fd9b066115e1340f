package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantprov/internal/apierror"
	"github.com/wolfeidau/tenantprov/internal/client"
	"github.com/wolfeidau/tenantprov/internal/credentials"
	"github.com/wolfeidau/tenantprov/internal/models"
	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func userScope(t *testing.T, fn func(ctx context.Context) error) error {
	t.Helper()
	return credentials.TenantScope(context.Background(), "demo", func(ctx context.Context) error {
		return credentials.UserScope(ctx, "antony", &oauth2.Token{AccessToken: "admin-token"}, fn)
	})
}

func TestPasswordEncoding(t *testing.T) {
	assert.Equal(t, "aW5pdDFAbA==", EncodePassword("init1@l"))

	plain, err := DecodePassword("aW5pdDFAbA==")
	require.NoError(t, err)
	assert.Equal(t, "init1@l", plain)

	_, err = DecodePassword("%%%")
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "demo", r.Header.Get(credentials.TenantHeader))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "antony", r.URL.Query().Get("username"))
		assert.Equal(t, EncodePassword("one-time"), r.URL.Query().Get("password"))

		_ = json.NewEncoder(w).Encode(models.Authentication{AccessToken: "admin-token"})
	})

	err := credentials.TenantScope(context.Background(), "demo", func(ctx context.Context) error {
		auth, err := c.Login(ctx, "antony", "one-time")
		require.NoError(t, err)
		assert.Equal(t, "admin-token", auth.AccessToken)
		return nil
	})
	require.NoError(t, err)
}

func TestLogin_WrongPassword(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	err := credentials.TenantScope(context.Background(), "demo", func(ctx context.Context) error {
		_, err := c.Login(ctx, "antony", "wrong")
		return err
	})
	assert.ErrorIs(t, err, apierror.ErrAuth)
}

func TestChangeUserPassword(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/users/antony/password", r.URL.Path)
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		assert.Equal(t, "antony", r.Header.Get(credentials.UserHeader))

		var body models.Password
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, EncodePassword("new-secret"), body.Password)

		w.WriteHeader(http.StatusAccepted)
	})

	require.NoError(t, userScope(t, func(ctx context.Context) error {
		return c.ChangeUserPassword(ctx, "antony", "new-secret")
	}))
}

func TestCreateRole(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/roles", r.URL.Path)

		var role models.Role
		require.NoError(t, json.NewDecoder(r.Body).Decode(&role))
		assert.Equal(t, "orgadmin", role.Identifier)
		assert.Len(t, role.Permissions, 5)

		w.WriteHeader(http.StatusAccepted)
	})

	require.NoError(t, userScope(t, func(ctx context.Context) error {
		return c.CreateRole(ctx, models.OrgAdminRole("orgadmin"))
	}))
}

func TestCreateUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var user models.UserWithPassword
		require.NoError(t, json.NewDecoder(r.Body).Decode(&user))
		assert.Equal(t, "operator", user.Identifier)
		assert.Equal(t, "orgadmin", user.Role)
		assert.Equal(t, EncodePassword("init1@l"), user.Password)

		w.WriteHeader(http.StatusConflict)
	})

	err := userScope(t, func(ctx context.Context) error {
		return c.CreateUser(ctx, models.UserWithPassword{Identifier: "operator", Password: "init1@l", Role: "orgadmin"})
	})
	assert.ErrorIs(t, err, apierror.ErrConflict)
}

func TestLogout(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/token/_current/logout", r.URL.Path)
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, userScope(t, c.Logout))
	assert.True(t, called)
}
