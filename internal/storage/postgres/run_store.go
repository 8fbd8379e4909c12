package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// RunStore persists operation runs in the operation_runs table.
type RunStore struct {
	pool Pool
}

// NewRunStoreWithPool builds a RunStore on an existing pool.
func NewRunStoreWithPool(pool Pool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

const runColumns = `id, kind, scope, status, started_at, finished_at, duration_ms,
	found, inserted, duplicated, rejected, errored, reject_reasons, sources, config, error_message`

// CreateRun inserts a running operation run.
func (s *RunStore) CreateRun(ctx context.Context, run ingest.OperationRun) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}
	query := `
INSERT INTO operation_runs (id, kind, scope, status, started_at, config)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.pool.Exec(ctx, query, run.ID, run.Kind, string(run.Scope), string(run.Status), run.StartedAt, cfgJSON)
	if err != nil {
		return classifyError("create run", err)
	}
	return nil
}

// SealRun writes the terminal state of a run. Only running rows are
// updated; sealing twice returns ingest.ErrRunSealed.
func (s *RunStore) SealRun(ctx context.Context, run ingest.OperationRun) error {
	reasons, err := json.Marshal(nonNilReasons(run.RejectReasons))
	if err != nil {
		return fmt.Errorf("marshal reject reasons: %w", err)
	}
	sources, err := json.Marshal(nonNilSources(run.Sources))
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	query := `
UPDATE operation_runs
SET status = $2,
	finished_at = $3,
	duration_ms = $4,
	found = $5,
	inserted = $6,
	duplicated = $7,
	rejected = $8,
	errored = $9,
	reject_reasons = $10,
	sources = $11,
	error_message = $12
WHERE id = $1 AND status = 'running'`
	tag, err := s.pool.Exec(ctx, query,
		run.ID,
		string(run.Status),
		run.FinishedAt,
		run.Duration.Milliseconds(),
		run.Counts.Found,
		run.Counts.Inserted,
		run.Counts.Duplicated,
		run.Counts.Rejected,
		run.Counts.Errored,
		reasons,
		sources,
		nullable(run.Error),
	)
	if err != nil {
		return fmt.Errorf("seal run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("seal run %s: %w", run.ID, ingest.ErrRunSealed)
	}
	return nil
}

// GetRun loads a single run.
func (s *RunStore) GetRun(ctx context.Context, id string) (ingest.OperationRun, error) {
	query := `SELECT ` + runColumns + ` FROM operation_runs WHERE id = $1`
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.OperationRun{}, ingest.ErrNotFound
		}
		return ingest.OperationRun{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]ingest.OperationRun, error) {
	query := `SELECT ` + runColumns + ` FROM operation_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []ingest.OperationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (ingest.OperationRun, error) {
	var (
		run                   ingest.OperationRun
		scope, status         string
		finishedAt            *time.Time
		durationMS            int64
		reasons, sources, cfg []byte
		errMsg                *string
	)
	err := row.Scan(
		&run.ID,
		&run.Kind,
		&scope,
		&status,
		&run.StartedAt,
		&finishedAt,
		&durationMS,
		&run.Counts.Found,
		&run.Counts.Inserted,
		&run.Counts.Duplicated,
		&run.Counts.Rejected,
		&run.Counts.Errored,
		&reasons,
		&sources,
		&cfg,
		&errMsg,
	)
	if err != nil {
		return ingest.OperationRun{}, err
	}
	run.Scope = ingest.SourceID(scope)
	run.Status = ingest.RunStatus(status)
	run.FinishedAt = finishedAt
	run.Duration = time.Duration(durationMS) * time.Millisecond
	if errMsg != nil {
		run.Error = *errMsg
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &run.RejectReasons); err != nil {
			return ingest.OperationRun{}, fmt.Errorf("decode reject reasons: %w", err)
		}
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &run.Sources); err != nil {
			return ingest.OperationRun{}, fmt.Errorf("decode sources: %w", err)
		}
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &run.Config); err != nil {
			return ingest.OperationRun{}, fmt.Errorf("decode config: %w", err)
		}
	}
	return run, nil
}

func nonNilReasons(m map[string]int64) map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return m
}

func nonNilSources(s []ingest.SourceResult) []ingest.SourceResult {
	if s == nil {
		return []ingest.SourceResult{}
	}
	return s
}
