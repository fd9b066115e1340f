package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantprov/internal/models"
)

// Sentinel errors for run store operations
var (
	ErrRunNotFound      = errors.New("run not found")
	ErrRunAlreadyExists = errors.New("run already exists")
	ErrRunFinished      = errors.New("run already finished")
)

// RunStore journals provisioning runs and the state transitions of their
// tenants.
type RunStore interface {
	// CreateRun records the start of a run.
	// Returns ErrRunAlreadyExists if the run ID is taken.
	CreateRun(ctx context.Context, run *models.Run) error

	// FinishRun sets the terminal status of a run.
	// Returns ErrRunNotFound if the run doesn't exist and ErrRunFinished if it
	// already has a terminal status.
	FinishRun(ctx context.Context, runID uuid.UUID, status models.RunStatus, finishedAt time.Time) error

	// GetRun retrieves a run by ID.
	// Returns ErrRunNotFound if the run doesn't exist.
	GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error)

	// ListRuns returns the most recent runs first, at most limit of them.
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)

	// RecordTransition appends a tenant state transition to the run.
	// Returns ErrRunNotFound if the run doesn't exist.
	RecordTransition(ctx context.Context, rec *models.TenantRecord) error

	// ListTenants returns the latest state of every tenant of a run, in the
	// order the tenants were first recorded.
	ListTenants(ctx context.Context, runID uuid.UUID) ([]*models.TenantRecord, error)

	// History returns every transition recorded for a tenant, oldest first.
	History(ctx context.Context, runID uuid.UUID, tenantID string) ([]*models.TenantRecord, error)
}
