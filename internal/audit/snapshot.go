package audit

import (
	"time"

	"github.com/wonny/smartflow/internal/contracts"
)

// Run kinds
const (
	KindTrain   = "train"
	KindPredict = "predict"
	KindQuality = "quality"
)

// StageTiming is the wall time of one pipeline stage
type StageTiming struct {
	Stage   string  `json:"stage"`
	Seconds float64 `json:"seconds"`
}

// Summary counts what each stage kept and dropped
type Summary struct {
	Dates         int               `json:"dates"`
	AcceptedDates int               `json:"accepted_dates"`
	ExcludedDates map[string]string `json:"excluded_dates,omitempty"` // date → reason
	IngestFailed  []string          `json:"ingest_failed,omitempty"`
	SoftExcluded  int               `json:"soft_excluded"`
	Symbols       int               `json:"symbols"`
	StaleFilled   int               `json:"stale_filled"`
	MissingDates  int               `json:"missing_dates"`
	Vectors       int               `json:"vectors"`
	Illiquid      int               `json:"illiquid"`
	Insufficient  int               `json:"insufficient"`
	Anomalies     int               `json:"anomalies"`

	// train
	Trained map[string]string `json:"trained,omitempty"` // horizon → model id
	Skipped map[string]string `json:"skipped,omitempty"` // horizon → reason

	// predict
	Candidates  int    `json:"candidates,omitempty"`
	Predictions int    `json:"predictions,omitempty"`
	OutputCSV   string `json:"output_csv,omitempty"`

	Performance []PerformanceReport `json:"performance,omitempty"`
}

// RunSnapshot is the audit record of one pipeline run
// ⭐ SSOT: 실행 기록 단위
type RunSnapshot struct {
	RunID      string        `json:"run_id"`
	Kind       string        `json:"kind"`
	AsOf       time.Time     `json:"as_of"`
	ConfigHash string        `json:"config_hash"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   float64       `json:"duration_seconds"`
	Stages     []StageTiming `json:"stages"`
	Summary    Summary       `json:"summary"`
}

// NewRunSnapshot starts a run record
func NewRunSnapshot(runID, kind, configHash string, started time.Time) *RunSnapshot {
	return &RunSnapshot{
		RunID:      runID,
		Kind:       kind,
		ConfigHash: configHash,
		StartedAt:  started,
		Stages:     make([]StageTiming, 0),
		Summary: Summary{
			ExcludedDates: make(map[string]string),
		},
	}
}

// AddStage appends a stage timing
func (s *RunSnapshot) AddStage(stage string, d time.Duration) {
	s.Stages = append(s.Stages, StageTiming{Stage: stage, Seconds: d.Seconds()})
}

// Finish closes the record with the run outcome
func (s *RunSnapshot) Finish(err error, now time.Time) {
	s.Success = err == nil
	if err != nil {
		s.Error = err.Error()
	}
	s.Duration = now.Sub(s.StartedAt).Seconds()
	if !s.AsOf.IsZero() {
		s.AsOf = contracts.Day(s.AsOf)
	}
}
