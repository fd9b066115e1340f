// Package provisioner is a client for the central provisioning service, which
// registers applications and tenants and binds one to the other.
//
// Every call except Authenticate must run inside credentials.SystemScope.
package provisioner

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wolfeidau/tenantprov/internal/client"
	"github.com/wolfeidau/tenantprov/internal/models"
)

// Client is the provisioning service API.
type Client interface {
	Authenticate(ctx context.Context, clientID, username, secret string) (*models.Authentication, error)
	CreateApplication(ctx context.Context, app models.Application) error
	CreateTenant(ctx context.Context, tenant models.Tenant) error
	AssignIdentityManager(ctx context.Context, tenantID string, app models.AssignedApplication) (*models.IdentityManagerInitialization, error)
	AssignApplications(ctx context.Context, tenantID string, apps []models.AssignedApplication) error
	GetAssignedApplications(ctx context.Context, tenantID string) ([]models.AssignedApplication, error)
}

// HTTPClient implements Client over the service's JSON API.
type HTTPClient struct {
	client *client.Client
}

var _ Client = (*HTTPClient)(nil)

// New creates a client for the provisioning service at config.BaseURL.
func New(config client.Config) (*HTTPClient, error) {
	c, err := client.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provisioner client: %w", err)
	}
	return &HTTPClient{client: c}, nil
}

type authenticationResponse struct {
	Token                 string    `json:"token"`
	AccessTokenExpiration time.Time `json:"accessTokenExpiration,omitzero"`
}

// Authenticate obtains a system token for username. A bad secret yields
// apierror.ErrAuth.
func (p *HTTPClient) Authenticate(ctx context.Context, clientID, username, secret string) (*models.Authentication, error) {
	var resp authenticationResponse
	err := p.client.Do(ctx, client.Request{
		Op:     "authenticate",
		Method: http.MethodPost,
		Path:   "/auth/token",
		Query: url.Values{
			"grant_type": {"password"},
			"client_id":  {clientID},
			"username":   {username},
			"password":   {secret},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &models.Authentication{
		AccessToken:           resp.Token,
		AccessTokenExpiration: resp.AccessTokenExpiration,
	}, nil
}

// CreateApplication registers app. A name already registered yields
// apierror.ErrConflict.
func (p *HTTPClient) CreateApplication(ctx context.Context, app models.Application) error {
	return p.client.Do(ctx, client.Request{
		Op:     "create application " + app.Name,
		Method: http.MethodPost,
		Path:   "/applications",
		Body:   app,
	}, nil)
}

// CreateTenant registers tenant. Its schema is provisioned asynchronously.
func (p *HTTPClient) CreateTenant(ctx context.Context, tenant models.Tenant) error {
	return p.client.Do(ctx, client.Request{
		Op:     "create tenant " + tenant.Identifier,
		Method: http.MethodPost,
		Path:   "/tenants",
		Body:   tenant,
	}, nil)
}

// AssignIdentityManager binds the identity service to the tenant and returns
// the one-time password of the tenant admin.
func (p *HTTPClient) AssignIdentityManager(ctx context.Context, tenantID string, app models.AssignedApplication) (*models.IdentityManagerInitialization, error) {
	var imi models.IdentityManagerInitialization
	err := p.client.Do(ctx, client.Request{
		Op:     "assign identity manager to " + tenantID,
		Method: http.MethodPost,
		Path:   "/tenants/" + url.PathEscape(tenantID) + "/identityservice",
		Body:   app,
	}, &imi)
	if err != nil {
		return nil, err
	}
	return &imi, nil
}

// AssignApplications binds apps to the tenant. Until the identity service is
// assigned and the tenant is ready this fails with apierror.ErrPrecondition.
func (p *HTTPClient) AssignApplications(ctx context.Context, tenantID string, apps []models.AssignedApplication) error {
	return p.client.Do(ctx, client.Request{
		Op:     "assign applications to " + tenantID,
		Method: http.MethodPost,
		Path:   "/tenants/" + url.PathEscape(tenantID) + "/applications",
		Body:   apps,
	}, nil)
}

// GetAssignedApplications lists the applications bound to the tenant.
func (p *HTTPClient) GetAssignedApplications(ctx context.Context, tenantID string) ([]models.AssignedApplication, error) {
	var apps []models.AssignedApplication
	err := p.client.Do(ctx, client.Request{
		Op:     "get applications of " + tenantID,
		Method: http.MethodGet,
		Path:   "/tenants/" + url.PathEscape(tenantID) + "/applications",
	}, &apps)
	if err != nil {
		return nil, err
	}
	return apps, nil
}
