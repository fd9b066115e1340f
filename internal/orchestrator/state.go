package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantprov/internal/models"
)

// State is the provisioning progress of one tenant.
type State string

const (
	StateRegistered        State = "REGISTERED"
	StateTenantCreated     State = "TENANT_CREATED"
	StateIdentityAssigned  State = "IDENTITY_ASSIGNED"
	StateStabilizing       State = "STABILIZING"
	StateAppsAssigned      State = "APPS_ASSIGNED"
	StateAdminBootstrapped State = "ADMIN_BOOTSTRAPPED"
	StateFailed            State = "FAILED"
)

// next lists the legal successor of every non-terminal state. FAILED may
// follow any state.
var next = map[State]State{
	StateRegistered:       StateTenantCreated,
	StateTenantCreated:    StateIdentityAssigned,
	StateIdentityAssigned: StateStabilizing,
	StateStabilizing:      StateAppsAssigned,
	StateAppsAssigned:     StateAdminBootstrapped,
}

// CanTransition reports whether a tenant in state from may move to to.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateFailed && from != StateAdminBootstrapped
	}
	return next[from] == to
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateAdminBootstrapped || s == StateFailed
}

// TenantResult is the outcome of provisioning one tenant.
type TenantResult struct {
	TenantID string
	State    State
	// FailedIn is the last state reached before failing.
	FailedIn State
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the tenant was fully provisioned.
func (r *TenantResult) Succeeded() bool {
	return r.State == StateAdminBootstrapped
}

// Report summarises a provisioning run. A run aborted by a fatal error holds
// the tenants processed up to the failure.
type Report struct {
	RunID                  uuid.UUID
	Status                 models.RunStatus
	ApplicationsRegistered int
	ApplicationsExisting   int
	Tenants                []*TenantResult
}

// Succeeded returns the number of fully provisioned tenants.
func (r *Report) Succeeded() int {
	n := 0
	for _, t := range r.Tenants {
		if t.Succeeded() {
			n++
		}
	}
	return n
}

// Failed returns the number of tenants that failed.
func (r *Report) Failed() int {
	n := 0
	for _, t := range r.Tenants {
		if t.State == StateFailed {
			n++
		}
	}
	return n
}

// Tenant returns the result for a tenant, or nil if it was never reached.
func (r *Report) Tenant(tenantID string) *TenantResult {
	for _, t := range r.Tenants {
		if t.TenantID == tenantID {
			return t
		}
	}
	return nil
}
