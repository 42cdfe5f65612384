package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/pkg/logger"
	"github.com/wonny/smartflow/pkg/metrics"
)

// Trainer fits one independent model per horizon
// ⭐ SSOT: 호라이즌별 모델 학습 (호라이즌 간 공유 상태 없음)
type Trainer struct {
	config     pipelineconfig.Training
	classifier contracts.Classifier
	store      *ModelStore
	record     *metrics.Recorder
	logger     *logger.Logger
}

// NewTrainer creates a trainer that persists to store
func NewTrainer(config pipelineconfig.Training, classifier contracts.Classifier, store *ModelStore, log *logger.Logger) *Trainer {
	return &Trainer{
		config:     config,
		classifier: classifier,
		store:      store,
		logger:     log.Component("training"),
	}
}

// WithMetrics records table sizes and CV scores
func (t *Trainer) WithMetrics(rec *metrics.Recorder) *Trainer {
	t.record = rec
	return t
}

// Input is everything a training run consumes
type Input struct {
	AsOf       time.Time
	Features   *contracts.FeatureSet
	Labels     map[string][]contracts.LabelRow // horizon → rows
	Anomalies  []contracts.AnomalyFlag
	Horizons   []contracts.Horizon
	ConfigHash string
}

// HorizonResult summarizes one trained horizon
type HorizonResult struct {
	Horizon       string       `json:"horizon"`
	Artifact      Artifact     `json:"artifact"`
	Rows          int          `json:"rows"`
	Positives     int          `json:"positives"`
	PositiveRatio float64      `json:"positive_ratio"`
	Imbalanced    bool         `json:"imbalanced"`
	CV            CVReport     `json:"cv"`
	Importance    []Importance `json:"importance"`
}

// Report is the outcome of a training run
type Report struct {
	Trained map[string]*HorizonResult `json:"trained"`
	Skipped map[string]string         `json:"skipped,omitempty"` // horizon → reason
}

// Train fits every horizon concurrently. Horizons without enough rows are
// skipped and reported; any other failure aborts the run.
func (t *Trainer) Train(ctx context.Context, in Input) (*Report, error) {
	report := &Report{
		Trained: make(map[string]*HorizonResult),
		Skipped: make(map[string]string),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range in.Horizons {
		g.Go(func() error {
			table := BuildTable(h, in.Features, in.Labels[h.Name], in.Anomalies)
			res, err := t.TrainHorizon(gctx, table, in.AsOf, in.ConfigHash)

			mu.Lock()
			defer mu.Unlock()

			var skip *contracts.TrainingSkip
			switch {
			case errors.As(err, &skip):
				report.Skipped[h.Name] = skip.Error()
				t.logger.WithFields(map[string]interface{}{
					"horizon": h.Name,
					"rows":    skip.Rows,
					"min":     skip.Min,
				}).Warn("Horizon skipped: insufficient training data")
				return nil
			case err != nil:
				return fmt.Errorf("train %s: %w", h.Name, err)
			}
			report.Trained[h.Name] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t.logger.WithFields(map[string]interface{}{
		"as_of":   contracts.DateKey(in.AsOf),
		"trained": len(report.Trained),
		"skipped": len(report.Skipped),
	}).Info("Training run completed")

	return report, nil
}

// TrainHorizon validates, cross-validates, fits and saves one horizon's model
func (t *Trainer) TrainHorizon(ctx context.Context, table *contracts.TrainingTable, asOf time.Time, configHash string) (*HorizonResult, error) {
	h := table.Horizon
	rows := len(table.Rows)
	log := t.logger.WithField("horizon", h.Name)

	if rows < t.config.MinRows {
		return nil, &contracts.TrainingSkip{Horizon: h.Name, Rows: rows, Min: t.config.MinRows}
	}

	pos := table.Positives()
	ratio := float64(pos) / float64(rows)
	r := t.config.MaxImbalanceRatio
	imbalanced := ratio < 1/(1+r) || ratio > r/(1+r)
	if imbalanced {
		log.WithFields(map[string]interface{}{
			"positive_ratio": ratio,
			"max_imbalance":  r,
		}).Warn("Class imbalance outside bounds, training continues")
	}

	cv, err := t.crossValidate(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("cross-validate: %w", err)
	}

	norm := FitNormalization(table.Rows, len(table.Names))
	pred, err := t.classifier.Fit(ctx, norm.Matrix(table.Rows), table.Labels)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	blob, err := pred.MarshalBinary()
	if err != nil {
		return nil, err
	}

	model := &Model{
		Horizon:       h,
		TrainedOn:     contracts.Day(asOf),
		FeatureNames:  append([]string(nil), table.Names...),
		Normalization: norm,
		Kind:          pred.Kind(),
		Classifier:    blob,
		Rows:          rows,
		Positives:     pos,
		CV:            cv,
		Importance:    rankImportance(table.Names, pred.FeatureImportance()),
		ConfigHash:    configHash,
	}
	artifact, err := t.store.Save(model)
	if err != nil {
		return nil, err
	}

	t.record.RecordTraining(h.Name, rows, cv.MeanAUC)

	fields := map[string]interface{}{
		"model":          artifact.ID(),
		"rows":           rows,
		"positive_ratio": ratio,
		"cv_folds":       len(cv.Folds),
		"cv_scored":      cv.Scored,
		"cv_mean_auc":    cv.MeanAUC,
		"cv_std_auc":     cv.StdAUC,
	}
	if len(model.Importance) > 0 {
		fields["top_feature"] = model.Importance[0].Feature
	}
	log.WithFields(fields).Info("Horizon model trained")

	return &HorizonResult{
		Horizon:       h.Name,
		Artifact:      artifact,
		Rows:          rows,
		Positives:     pos,
		PositiveRatio: ratio,
		Imbalanced:    imbalanced,
		CV:            cv,
		Importance:    model.Importance,
	}, nil
}
