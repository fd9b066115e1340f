// Package events confirms asynchronous identity mutations.
//
// Services announce each completed mutation as an Event. A Recorder subscribes
// to a Source before any mutation is issued and lets the caller block until
// the matching announcement arrives.
package events

import (
	"context"
	"time"
)

// Operation kinds announced by the identity service.
const (
	OperationPutUserPassword = "put-user-password"
	OperationPostRole        = "post-role"
	OperationPostUser        = "post-user"
)

// DefaultTimeout bounds a single Wait when the caller has no better value.
const DefaultTimeout = 30 * time.Second

// Event announces that an operation on entity completed within tenant.
type Event struct {
	Operation string `json:"operation"`
	Entity    string `json:"entity"`
	Tenant    string `json:"tenant,omitempty"`
}

// Matches reports whether e confirms operation on entity.
func (e Event) Matches(operation, entity string) bool {
	return e.Operation == operation && e.Entity == entity
}

// MatchesIn is Matches restricted to tenant. An event without a tenant, or an
// empty tenant, matches any tenant.
func (e Event) MatchesIn(tenant, operation, entity string) bool {
	if e.Tenant != "" && tenant != "" && e.Tenant != tenant {
		return false
	}
	return e.Matches(operation, entity)
}

// Source delivers events until ctx is cancelled, then closes the channel.
type Source interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Waiter blocks until an operation on entity is confirmed. When ctx carries a
// tenant scope (credentials.TenantScope) only confirmations from that tenant
// count. It returns false if no confirmation arrives within timeout or ctx is
// done first.
type Waiter interface {
	Wait(ctx context.Context, operation, entity string, timeout time.Duration) bool
}
