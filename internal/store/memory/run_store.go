package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantprov/internal/models"
	"github.com/wolfeidau/tenantprov/internal/store"
)

// RunStore implements store.RunStore using in-memory storage.
// Data is lost when the process exits.
type RunStore struct {
	mu sync.RWMutex

	runs        map[uuid.UUID]*models.Run
	transitions map[uuid.UUID][]models.TenantRecord // run_id -> transitions, oldest first
}

var _ store.RunStore = (*RunStore)(nil)

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:        make(map[uuid.UUID]*models.Run),
		transitions: make(map[uuid.UUID][]models.TenantRecord),
	}
}

func (s *RunStore) CreateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.RunID]; exists {
		return store.ErrRunAlreadyExists
	}

	clone := *run
	s.runs[run.RunID] = &clone

	return nil
}

func (s *RunStore) FinishRun(ctx context.Context, runID uuid.UUID, status models.RunStatus, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[runID]
	if !exists {
		return store.ErrRunNotFound
	}
	if run.IsFinished() {
		return store.ErrRunFinished
	}

	run.Status = status
	run.FinishedAt = finishedAt

	return nil
}

func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[runID]
	if !exists {
		return nil, store.ErrRunNotFound
	}

	clone := *run
	return &clone, nil
}

func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*models.Run, 0, len(s.runs))
	for _, run := range s.runs {
		clone := *run
		runs = append(runs, &clone)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

func (s *RunStore) RecordTransition(ctx context.Context, rec *models.TenantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[rec.RunID]; !exists {
		return store.ErrRunNotFound
	}

	s.transitions[rec.RunID] = append(s.transitions[rec.RunID], *rec)

	return nil
}

func (s *RunStore) ListTenants(ctx context.Context, runID uuid.UUID) ([]*models.TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var order []string
	latest := make(map[string]models.TenantRecord)
	for _, rec := range s.transitions[runID] {
		if _, seen := latest[rec.TenantID]; !seen {
			order = append(order, rec.TenantID)
		}
		latest[rec.TenantID] = rec
	}

	records := make([]*models.TenantRecord, 0, len(order))
	for _, tenantID := range order {
		rec := latest[tenantID]
		records = append(records, &rec)
	}

	return records, nil
}

func (s *RunStore) History(ctx context.Context, runID uuid.UUID, tenantID string) ([]*models.TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*models.TenantRecord
	for _, rec := range s.transitions[runID] {
		if rec.TenantID == tenantID {
			clone := rec
			records = append(records, &clone)
		}
	}

	return records, nil
}
