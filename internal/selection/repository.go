package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/smartflow/internal/contracts"
)

// Repository handles prediction persistence
// ⭐ SSOT: 예측 결과 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new selection repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SavePredictions replaces the per-horizon predictions of the table's date
func (r *Repository) SavePredictions(ctx context.Context, table *contracts.RankedTable) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM audit.predictions WHERE as_of = $1", table.AsOf); err != nil {
		return fmt.Errorf("failed to delete old predictions: %w", err)
	}

	query := `
		INSERT INTO audit.predictions (
			run_id, as_of, horizon, symbol, rank, probability, model_version, features
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, preds := range table.ByHorizon {
		for _, p := range preds {
			features, err := json.Marshal(p.Snapshot)
			if err != nil {
				return fmt.Errorf("failed to marshal snapshot: %w", err)
			}
			if _, err := tx.Exec(ctx, query,
				table.RunID, table.AsOf, p.Horizon, p.Symbol, p.Rank, p.Probability, p.ModelVersion, features,
			); err != nil {
				return fmt.Errorf("failed to insert prediction: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPredictions returns one horizon's predictions for a date in rank order
func (r *Repository) GetPredictions(ctx context.Context, asOf time.Time, horizon string, limit int) ([]contracts.Prediction, error) {
	query := `
		SELECT symbol, rank, probability, model_version, features
		FROM audit.predictions
		WHERE as_of = $1 AND horizon = $2
		ORDER BY rank ASC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, asOf, horizon, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.Prediction, 0, limit)
	for rows.Next() {
		p := contracts.Prediction{AsOf: asOf, Horizon: horizon}
		var features []byte
		if err := rows.Scan(&p.Symbol, &p.Rank, &p.Probability, &p.ModelVersion, &features); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if err := json.Unmarshal(features, &p.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetLatestDate returns the most recent prediction date
func (r *Repository) GetLatestDate(ctx context.Context) (time.Time, error) {
	var d time.Time
	err := r.pool.QueryRow(ctx, "SELECT MAX(as_of) FROM audit.predictions HAVING COUNT(*) > 0").Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("no predictions stored")
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest prediction date: %w", err)
	}
	return d, nil
}
