package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the outcome of a provisioning run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusPartial   RunStatus = "PARTIAL"
	RunStatusAborted   RunStatus = "ABORTED"
)

// Run is one execution of a provisioning batch.
type Run struct {
	RunID      uuid.UUID // UUIDv7
	Status     RunStatus
	Tenants    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// IsFinished returns true once the run has a terminal status.
func (r *Run) IsFinished() bool {
	return r.Status != RunStatusRunning && r.Status != ""
}

// TenantRecord is the last known provisioning state of a tenant within a run.
type TenantRecord struct {
	RunID     uuid.UUID
	TenantID  string
	State     string
	Error     string
	UpdatedAt time.Time
}
