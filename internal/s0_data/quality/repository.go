package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/smartflow/internal/contracts"
)

// Repository handles quality report persistence
// ⭐ SSOT: S0 품질 리포트 저장/조회
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quality repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveReport upserts the report of one date
func (r *Repository) SaveReport(ctx context.Context, report *contracts.QualityReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal quality report: %w", err)
	}

	query := `
		INSERT INTO audit.quality_reports (
			report_date, input_hash, hard_failed, reduced_conf, soft_failures, report
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (report_date) DO UPDATE SET
			input_hash = EXCLUDED.input_hash,
			hard_failed = EXCLUDED.hard_failed,
			reduced_conf = EXCLUDED.reduced_conf,
			soft_failures = EXCLUDED.soft_failures,
			report = EXCLUDED.report,
			updated_at = NOW()
	`

	_, err = r.pool.Exec(ctx, query,
		report.Date,
		report.InputHash,
		report.HardFailed,
		report.ReducedConfidence,
		len(report.SoftExcluded),
		body,
	)
	if err != nil {
		return fmt.Errorf("save quality report: %w", err)
	}

	return nil
}

// GetByDate retrieves the report of a date
func (r *Repository) GetByDate(ctx context.Context, date time.Time) (*contracts.QualityReport, error) {
	query := `SELECT report FROM audit.quality_reports WHERE report_date = $1`

	var body []byte
	if err := r.pool.QueryRow(ctx, query, date).Scan(&body); err != nil {
		return nil, fmt.Errorf("get quality report: %w", err)
	}
	return decodeReport(body)
}

// GetLatest retrieves the most recent report
func (r *Repository) GetLatest(ctx context.Context) (*contracts.QualityReport, error) {
	query := `
		SELECT report
		FROM audit.quality_reports
		ORDER BY report_date DESC
		LIMIT 1
	`

	var body []byte
	if err := r.pool.QueryRow(ctx, query).Scan(&body); err != nil {
		return nil, fmt.Errorf("get latest quality report: %w", err)
	}
	return decodeReport(body)
}

func decodeReport(body []byte) (*contracts.QualityReport, error) {
	var report contracts.QualityReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("decode quality report: %w", err)
	}
	return &report, nil
}
