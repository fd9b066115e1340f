// Package config loads the batch description a provisioning run works from.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Defaults carried over from the platform's demo deployment.
const (
	DefaultClientID            = "service-runner"
	DefaultSystemUser          = "wepemnefret"
	DefaultIdentityApplication = "identity-v1"
	DefaultTenantAdminUser     = "antony"
	DefaultOrgAdminRole        = "orgadmin"
	DefaultOrgAdminUser        = "operator"
	DefaultOrgAdminPassword    = "init1@l"

	DefaultEventTimeout    = 30 * time.Second
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
	DefaultMaxElapsed      = 2 * time.Minute
	DefaultMaxTries        = 20
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is a batch of applications and tenants to provision.
type Config struct {
	Provisioner  Provisioner   `yaml:"provisioner"`
	Identity     Identity      `yaml:"identity"`
	Events       Events        `yaml:"events"`
	Readiness    Readiness     `yaml:"readiness"`
	TenantAdmin  TenantAdmin   `yaml:"tenantAdmin"`
	OrgAdmin     OrgAdmin      `yaml:"orgAdmin"`
	Applications []Application `yaml:"applications"`
	Tenants      []Tenant      `yaml:"tenants"`
}

// Provisioner locates and authenticates against the provisioning service.
type Provisioner struct {
	URL      string `yaml:"url"`
	ClientID string `yaml:"clientId"`
	Username string `yaml:"username"`
	Secret   string `yaml:"secret"`
}

// Identity locates the identity service and names its application.
type Identity struct {
	URL         string `yaml:"url"`
	Application string `yaml:"application"`
}

type Events struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Readiness bounds the poll that waits for a new tenant to accept
// application assignments.
type Readiness struct {
	Settle          time.Duration `yaml:"settle"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
	MaxElapsed      time.Duration `yaml:"maxElapsed"`
	MaxTries        uint          `yaml:"maxTries"`
}

// TenantAdmin is the administrator created by the identity service when it
// is assigned to a tenant. Password replaces the one-time password.
type TenantAdmin struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// OrgAdmin is the role and first user bootstrapped in every tenant.
type OrgAdmin struct {
	Role     string `yaml:"role"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type Application struct {
	Name string `yaml:"name"`
	URI  string `yaml:"uri"`
}

type Tenant struct {
	Identifier  string `yaml:"identifier"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Schema      string `yaml:"schema"`
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Provisioner.ClientID == "" {
		c.Provisioner.ClientID = DefaultClientID
	}
	if c.Provisioner.Username == "" {
		c.Provisioner.Username = DefaultSystemUser
	}
	if c.Identity.Application == "" {
		c.Identity.Application = DefaultIdentityApplication
	}
	if c.Events.Timeout == 0 {
		c.Events.Timeout = DefaultEventTimeout
	}
	if c.Readiness.InitialInterval == 0 {
		c.Readiness.InitialInterval = DefaultInitialInterval
	}
	if c.Readiness.MaxInterval == 0 {
		c.Readiness.MaxInterval = DefaultMaxInterval
	}
	if c.Readiness.MaxElapsed == 0 {
		c.Readiness.MaxElapsed = DefaultMaxElapsed
	}
	if c.Readiness.MaxTries == 0 {
		c.Readiness.MaxTries = DefaultMaxTries
	}
	if c.TenantAdmin.User == "" {
		c.TenantAdmin.User = DefaultTenantAdminUser
	}
	if c.OrgAdmin.Role == "" {
		c.OrgAdmin.Role = DefaultOrgAdminRole
	}
	if c.OrgAdmin.User == "" {
		c.OrgAdmin.User = DefaultOrgAdminUser
	}
	if c.OrgAdmin.Password == "" {
		c.OrgAdmin.Password = DefaultOrgAdminPassword
	}
	for i := range c.Tenants {
		if c.Tenants[i].Schema == "" {
			c.Tenants[i].Schema = c.Tenants[i].Identifier
		}
		if c.Tenants[i].Name == "" {
			c.Tenants[i].Name = c.Tenants[i].Identifier
		}
	}
}

// Validate reports every problem found in the config as one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Provisioner.URL == "" {
		errs = append(errs, errors.New("provisioner.url is required"))
	}
	if c.Provisioner.Secret == "" {
		errs = append(errs, errors.New("provisioner.secret is required"))
	}
	if c.Identity.URL == "" {
		errs = append(errs, errors.New("identity.url is required"))
	}
	if c.TenantAdmin.Password == "" {
		errs = append(errs, errors.New("tenantAdmin.password is required"))
	}
	if c.OrgAdmin.Password == "" {
		errs = append(errs, errors.New("orgAdmin.password is required"))
	}

	if c.Events.Timeout <= 0 {
		errs = append(errs, errors.New("events.timeout must be positive"))
	}
	if c.Readiness.Settle < 0 {
		errs = append(errs, errors.New("readiness.settle must not be negative"))
	}
	if c.Readiness.InitialInterval <= 0 || c.Readiness.MaxInterval <= 0 || c.Readiness.MaxElapsed <= 0 {
		errs = append(errs, errors.New("readiness intervals must be positive"))
	}
	if c.Readiness.InitialInterval > c.Readiness.MaxInterval {
		errs = append(errs, errors.New("readiness.initialInterval must not exceed readiness.maxInterval"))
	}
	if c.Readiness.MaxTries == 0 {
		errs = append(errs, errors.New("readiness.maxTries must be positive"))
	}

	if len(c.Applications) == 0 {
		errs = append(errs, errors.New("at least one application is required"))
	}
	apps := make(map[string]bool, len(c.Applications))
	for i, app := range c.Applications {
		if app.Name == "" {
			errs = append(errs, fmt.Errorf("applications[%d].name is required", i))
			continue
		}
		if apps[app.Name] {
			errs = append(errs, fmt.Errorf("duplicate application %q", app.Name))
		}
		apps[app.Name] = true
	}
	if c.Identity.Application != "" && len(c.Applications) > 0 && !apps[c.Identity.Application] {
		errs = append(errs, fmt.Errorf("identity application %q is not in applications", c.Identity.Application))
	}

	if len(c.Tenants) == 0 {
		errs = append(errs, errors.New("at least one tenant is required"))
	}
	tenants := make(map[string]bool, len(c.Tenants))
	for i, tenant := range c.Tenants {
		if tenant.Identifier == "" {
			errs = append(errs, fmt.Errorf("tenants[%d].identifier is required", i))
			continue
		}
		if tenants[tenant.Identifier] {
			errs = append(errs, fmt.Errorf("duplicate tenant %q", tenant.Identifier))
		}
		tenants[tenant.Identifier] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// OtherApplications returns every application except the identity service, in
// batch order.
func (c *Config) OtherApplications() []Application {
	var apps []Application
	for _, app := range c.Applications {
		if app.Name != c.Identity.Application {
			apps = append(apps, app)
		}
	}
	return apps
}
