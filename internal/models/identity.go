package models

import (
	"time"

	"github.com/rs/zerolog"
)

// AllowedOperation is an operation granted on an endpoint group.
type AllowedOperation string

const (
	OperationRead   AllowedOperation = "READ"
	OperationChange AllowedOperation = "CHANGE"
	OperationDelete AllowedOperation = "DELETE"
)

// AllOperations returns the full allowed-operation set.
func AllOperations() []AllowedOperation {
	return []AllowedOperation{OperationRead, OperationChange, OperationDelete}
}

// Endpoint groups granted to the organisation administrator.
const (
	EndpointGroupEmployeeManagement = "office__v1__employees"
	EndpointGroupOfficeManagement   = "office__v1__offices"
	EndpointGroupIdentityManagement = "identity__v1__users"
	EndpointGroupRoleManagement     = "identity__v1__roles"
	EndpointGroupSelfManagement     = "identity__v1__self"
)

// Permission grants a set of operations on one endpoint group.
type Permission struct {
	EndpointGroup     string             `json:"permittableEndpointGroupIdentifier"`
	AllowedOperations []AllowedOperation `json:"allowedOperations"`
}

// Role is a named, ordered list of permissions.
type Role struct {
	Identifier  string       `json:"identifier"`
	Permissions []Permission `json:"permissions"`
}

// OrgAdminRole returns the organisation administrator role: every operation on
// employee, office, identity, role and self management.
func OrgAdminRole(identifier string) Role {
	groups := []string{
		EndpointGroupEmployeeManagement,
		EndpointGroupOfficeManagement,
		EndpointGroupIdentityManagement,
		EndpointGroupRoleManagement,
		EndpointGroupSelfManagement,
	}

	permissions := make([]Permission, 0, len(groups))
	for _, group := range groups {
		permissions = append(permissions, Permission{
			EndpointGroup:     group,
			AllowedOperations: AllOperations(),
		})
	}

	return Role{Identifier: identifier, Permissions: permissions}
}

// UserWithPassword is a user to create together with its initial password and role.
type UserWithPassword struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}

// MarshalZerologObject omits the password.
func (u UserWithPassword) MarshalZerologObject(e *zerolog.Event) {
	e.Str("identifier", u.Identifier).Str("role", u.Role)
}

// Password is the body of a password change.
type Password struct {
	Password string `json:"password"`
}

// Authentication is returned by a successful login.
type Authentication struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiration time.Time `json:"accessTokenExpiration,omitzero"`
}
