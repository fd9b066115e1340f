package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantprov/internal/models"
	"github.com/wolfeidau/tenantprov/internal/store"
)

// RunStore implements store.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
	cfg  *RunStoreConfig
}

var _ store.RunStore = (*RunStore)(nil)

// NewRunStore opens the journal database, applying migrations when
// cfg.AutoMigrate is set.
func NewRunStore(ctx context.Context, cfg *RunStoreConfig) (*RunStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run store config: %w", err)
	}

	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &RunStore{pool: pool, cfg: cfg}, nil
}

// Close releases the connection pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

func (s *RunStore) CreateRun(ctx context.Context, run *models.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (run_id, status, tenants, started_at)
		VALUES ($1, $2, $3, $4)
	`, run.RunID, string(run.Status), run.Tenants, run.StartedAt)
	if err != nil {
		err = mapPostgresError(err)
		if errors.Is(err, store.ErrRunAlreadyExists) {
			return err
		}
		return fmt.Errorf("failed to create run: %w", err)
	}

	log.Debug().Str("run_id", run.RunID.String()).Int("tenants", run.Tenants).Msg("Created run")

	return nil
}

func (s *RunStore) FinishRun(ctx context.Context, runID uuid.UUID, status models.RunStatus, finishedAt time.Time) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE runs SET status = $2, finished_at = $3
		WHERE run_id = $1 AND status = 'RUNNING'
	`, runID, string(status), finishedAt)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		// distinguish a missing run from one that already finished
		if _, err := s.GetRun(ctx, runID); err != nil {
			return err
		}
		return store.ErrRunFinished
	}

	return nil
}

func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT run_id, status, tenants, started_at, finished_at
		FROM runs
		WHERE run_id = $1
	`, runID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = s.cfg.ListLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id, status, tenants, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

func (s *RunStore) RecordTransition(ctx context.Context, rec *models.TenantRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenant_transitions (run_id, tenant_id, state, error, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.RunID, rec.TenantID, rec.State, rec.Error, rec.UpdatedAt)
	if err != nil {
		err = mapPostgresError(err)
		if errors.Is(err, store.ErrRunNotFound) {
			return store.ErrRunNotFound
		}
		return fmt.Errorf("failed to record transition: %w", err)
	}

	return nil
}

func (s *RunStore) ListTenants(ctx context.Context, runID uuid.UUID) ([]*models.TenantRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, tenant_id, state, error, created_at
		FROM (
			SELECT DISTINCT ON (tenant_id)
				id, run_id, tenant_id, state, error, created_at,
				min(id) OVER (PARTITION BY tenant_id) AS first_id
			FROM tenant_transitions
			WHERE run_id = $1
			ORDER BY tenant_id, id DESC
		) latest
		ORDER BY first_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	return collectRecords(rows)
}

func (s *RunStore) History(ctx context.Context, runID uuid.UUID, tenantID string) ([]*models.TenantRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, tenant_id, state, error, created_at
		FROM tenant_transitions
		WHERE run_id = $1 AND tenant_id = $2
		ORDER BY id
	`, runID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant history: %w", err)
	}

	return collectRecords(rows)
}

func scanRun(row pgx.Row) (*models.Run, error) {
	var (
		run        models.Run
		status     string
		finishedAt *time.Time
	)

	if err := row.Scan(&run.RunID, &status, &run.Tenants, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	if finishedAt != nil {
		run.FinishedAt = *finishedAt
	}

	return &run, nil
}

func collectRecords(rows pgx.Rows) ([]*models.TenantRecord, error) {
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.TenantRecord, error) {
		var rec models.TenantRecord
		err := row.Scan(&rec.RunID, &rec.TenantID, &rec.State, &rec.Error, &rec.UpdatedAt)
		return &rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tenant records: %w", err)
	}
	return records, nil
}
