package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRunNotFound is returned when a run id is not stored
var ErrRunNotFound = errors.New("run not found")

// Repository handles audit data persistence
// ⭐ SSOT: Audit 데이터 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveRun upserts a run record
func (r *Repository) SaveRun(ctx context.Context, run *RunSnapshot) error {
	summary, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	query := `
		INSERT INTO audit.runs (
			run_id, kind, as_of, config_hash, success, summary
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			as_of = EXCLUDED.as_of,
			success = EXCLUDED.success,
			summary = EXCLUDED.summary
	`

	_, err = r.pool.Exec(ctx, query,
		run.RunID, run.Kind, run.AsOf, run.ConfigHash, run.Success, summary,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetRun retrieves one run by id
func (r *Repository) GetRun(ctx context.Context, runID string) (*RunSnapshot, error) {
	var body []byte
	err := r.pool.QueryRow(ctx, "SELECT summary FROM audit.runs WHERE run_id = $1", runID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run RunSnapshot
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, optionally of one kind
func (r *Repository) ListRuns(ctx context.Context, kind string, limit int) ([]RunSnapshot, error) {
	query := `
		SELECT summary
		FROM audit.runs
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunSnapshot, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var run RunSnapshot
		if err := json.Unmarshal(body, &run); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}
