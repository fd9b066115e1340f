// Package identity is a client for the per-tenant identity service.
//
// The target tenant is taken from the credential scope of each call
// (credentials.TenantScope); user calls also need credentials.UserScope.
// Passwords are passed in plain text and base64 encoded on the wire.
package identity

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"github.com/wolfeidau/tenantprov/internal/client"
	"github.com/wolfeidau/tenantprov/internal/models"
)

// Client is the identity service API.
type Client interface {
	Login(ctx context.Context, user, password string) (*models.Authentication, error)
	ChangeUserPassword(ctx context.Context, user, password string) error
	CreateRole(ctx context.Context, role models.Role) error
	CreateUser(ctx context.Context, user models.UserWithPassword) error
	Logout(ctx context.Context) error
}

// HTTPClient implements Client over the service's JSON API.
type HTTPClient struct {
	client *client.Client
}

var _ Client = (*HTTPClient)(nil)

// New creates a client for the identity service at config.BaseURL.
func New(config client.Config) (*HTTPClient, error) {
	c, err := client.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity client: %w", err)
	}
	return &HTTPClient{client: c}, nil
}

// EncodePassword applies the wire encoding the identity service expects.
func EncodePassword(password string) string {
	return base64.StdEncoding.EncodeToString([]byte(password))
}

// DecodePassword reverses EncodePassword.
func DecodePassword(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode password: %w", err)
	}
	return string(data), nil
}

// Login authenticates user in the scoped tenant. A wrong password yields
// apierror.ErrAuth.
func (c *HTTPClient) Login(ctx context.Context, user, password string) (*models.Authentication, error) {
	var auth models.Authentication
	err := c.client.Do(ctx, client.Request{
		Op:     "login " + user,
		Method: http.MethodPost,
		Path:   "/token",
		Query: url.Values{
			"grant_type": {"password"},
			"username":   {user},
			"password":   {EncodePassword(password)},
		},
	}, &auth)
	if err != nil {
		return nil, err
	}
	return &auth, nil
}

// ChangeUserPassword replaces the password of user. The change is confirmed
// asynchronously by a put-user-password event.
func (c *HTTPClient) ChangeUserPassword(ctx context.Context, user, password string) error {
	return c.client.Do(ctx, client.Request{
		Op:     "change password of " + user,
		Method: http.MethodPut,
		Path:   "/users/" + url.PathEscape(user) + "/password",
		Body:   models.Password{Password: EncodePassword(password)},
	}, nil)
}

// CreateRole creates role in the scoped tenant. An existing identifier yields
// apierror.ErrConflict.
func (c *HTTPClient) CreateRole(ctx context.Context, role models.Role) error {
	return c.client.Do(ctx, client.Request{
		Op:     "create role " + role.Identifier,
		Method: http.MethodPost,
		Path:   "/roles",
		Body:   role,
	}, nil)
}

// CreateUser creates user with its initial password and role.
func (c *HTTPClient) CreateUser(ctx context.Context, user models.UserWithPassword) error {
	user.Password = EncodePassword(user.Password)
	return c.client.Do(ctx, client.Request{
		Op:     "create user " + user.Identifier,
		Method: http.MethodPost,
		Path:   "/users",
		Body:   user,
	}, nil)
}

// Logout revokes the token of the scoped user.
func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.client.Do(ctx, client.Request{
		Op:     "logout",
		Method: http.MethodPost,
		Path:   "/token/_current/logout",
	}, nil)
}
