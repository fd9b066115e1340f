package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantprov/internal/models"
	"github.com/wolfeidau/tenantprov/internal/store"
)

func newRun(t *testing.T, startedAt time.Time) *models.Run {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return &models.Run{RunID: id, Status: models.RunStatusRunning, Tenants: 2, StartedAt: startedAt}
}

func TestRunStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewRunStore()

	run := newRun(t, time.Now())
	require.NoError(t, s.CreateRun(ctx, run))
	assert.ErrorIs(t, s.CreateRun(ctx, run), store.ErrRunAlreadyExists)

	got, err := s.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.False(t, got.IsFinished())

	finished := time.Now()
	require.NoError(t, s.FinishRun(ctx, run.RunID, models.RunStatusPartial, finished))
	assert.ErrorIs(t, s.FinishRun(ctx, run.RunID, models.RunStatusCompleted, finished), store.ErrRunFinished)

	got, err = s.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPartial, got.Status)
	assert.True(t, got.IsFinished())
	assert.Equal(t, finished, got.FinishedAt)
}

func TestRunStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewRunStore()

	_, err := s.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrRunNotFound)

	assert.ErrorIs(t, s.FinishRun(ctx, uuid.New(), models.RunStatusCompleted, time.Now()), store.ErrRunNotFound)
	assert.ErrorIs(t, s.RecordTransition(ctx, &models.TenantRecord{RunID: uuid.New(), TenantID: "demo"}), store.ErrRunNotFound)
}

func TestRunStore_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewRunStore()

	now := time.Now()
	older := newRun(t, now.Add(-time.Hour))
	newer := newRun(t, now)
	require.NoError(t, s.CreateRun(ctx, older))
	require.NoError(t, s.CreateRun(ctx, newer))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.RunID, runs[0].RunID)

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestRunStore_Transitions(t *testing.T) {
	ctx := context.Background()
	s := NewRunStore()

	run := newRun(t, time.Now())
	require.NoError(t, s.CreateRun(ctx, run))

	record := func(tenant, state, errMsg string) {
		require.NoError(t, s.RecordTransition(ctx, &models.TenantRecord{
			RunID: run.RunID, TenantID: tenant, State: state, Error: errMsg, UpdatedAt: time.Now(),
		}))
	}

	record("playground", "TENANT_CREATED", "")
	record("demo", "TENANT_CREATED", "")
	record("playground", "IDENTITY_ASSIGNED", "")
	record("demo", "FAILED", "confirmation timeout")

	tenants, err := s.ListTenants(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "playground", tenants[0].TenantID)
	assert.Equal(t, "IDENTITY_ASSIGNED", tenants[0].State)
	assert.Equal(t, "demo", tenants[1].TenantID)
	assert.Equal(t, "FAILED", tenants[1].State)
	assert.Equal(t, "confirmation timeout", tenants[1].Error)

	history, err := s.History(ctx, run.RunID, "playground")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "TENANT_CREATED", history[0].State)
	assert.Equal(t, "IDENTITY_ASSIGNED", history[1].State)
}
