package models

import "github.com/rs/zerolog"

// Tenant is an isolated customer environment. SchemaName names the backing
// schema the provisioner creates when the tenant is registered.
type Tenant struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SchemaName  string `json:"databaseName"`
}

// IdentityManagerInitialization carries the one-time password of the tenant
// admin. It must never be persisted or logged.
type IdentityManagerInitialization struct {
	AdminPassword string `json:"adminPassword"`
}

// String redacts the password.
func (i IdentityManagerInitialization) String() string {
	return "IdentityManagerInitialization{AdminPassword:<redacted>}"
}

// MarshalZerologObject redacts the password.
func (i IdentityManagerInitialization) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("has_admin_password", i.AdminPassword != "")
}
