package brain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/smartflow/internal/anomaly"
	"github.com/wonny/smartflow/internal/audit"
	"github.com/wonny/smartflow/internal/classifier"
	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/labels"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/internal/s0_data/ingest"
	"github.com/wonny/smartflow/internal/s0_data/quality"
	"github.com/wonny/smartflow/internal/s0_data/reconcile"
	"github.com/wonny/smartflow/internal/s1_universe"
	"github.com/wonny/smartflow/internal/s2_features"
	"github.com/wonny/smartflow/internal/selection"
	"github.com/wonny/smartflow/internal/training"
	"github.com/wonny/smartflow/pkg/config"
	"github.com/wonny/smartflow/pkg/logger"
	"github.com/wonny/smartflow/pkg/metrics"
	"github.com/wonny/smartflow/pkg/redis"
)

// Stage names used in run records and the stage duration histogram
const (
	StageIngest    = "ingest"
	StageQuality   = "quality"
	StageReconcile = "reconcile"
	StageFeatures  = "features"
	StageLabels    = "labels"
	StageAnomaly   = "anomaly"
	StagePersist   = "persist"
	StageTraining  = "training"
	StageAudit     = "audit"
	StageModels    = "models"
	StageScreening = "screening"
	StageRanking   = "ranking"
	StageOutput    = "output"
)

// Orchestrator coordinates the train and predict pipelines
// ⭐ SSOT: 파이프라인 조율은 여기서만
type Orchestrator struct {
	config     *pipelineconfig.Config
	configHash string

	// Stage components
	adapter    *ingest.Adapter
	gate       *quality.Gate
	reconciler *reconcile.Reconciler
	universe   *s1_universe.Gate
	features   *s2_features.Builder
	detector   *anomaly.Detector
	trainer    *training.Trainer
	screener   *selection.Screener
	ranker     *selection.Ranker
	analyzer   *audit.Analyzer

	// File stores
	processed *s2_features.Store
	models    *training.ModelStore
	output    *selection.Output

	// Optional persistence
	predictionRepo *selection.Repository
	auditRepo      *audit.Repository
	universeRepo   *s1_universe.Repository
	cache          *redis.Cache

	metrics *metrics.Recorder
	logger  *logger.Logger
}

// PredictOptions selects the model artifacts of a prediction run
type PredictOptions struct {
	// ModelVersion pins every horizon to one artifact ("YYYYMMDD_vN");
	// empty means each horizon's LATEST pointer
	ModelVersion string
}

// TrainResult holds the results of a training run
type TrainResult struct {
	Run      *audit.RunSnapshot
	Training *training.Report
}

// PredictResult holds the results of a prediction run
type PredictResult struct {
	Run      *audit.RunSnapshot
	Table    *contracts.RankedTable
	CSVPath  string
	JSONPath string
}

// QualityResult holds the results of a quality-only run
type QualityResult struct {
	Run      *audit.RunSnapshot
	Coverage *contracts.CoverageSummary
}

// prepared is the shared front half of both pipelines
type prepared struct {
	asOf      time.Time
	history   contracts.History // reconciled
	features  *s2_features.Result
	anomalies []contracts.AnomalyFlag
}

// NewOrchestrator wires every stage from the pipeline config and the file layout
func NewOrchestrator(cfg *pipelineconfig.Config, paths config.PipelineConfig, rec *metrics.Recorder, log *logger.Logger) (*Orchestrator, error) {
	hash, err := pipelineconfig.Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash pipeline config: %w", err)
	}

	models := training.NewModelStore(paths.ModelDir())
	gbt := classifier.New(classifier.ParamsFrom(cfg.Training.Classifier))
	universe := s1_universe.NewGate(cfg.Universe)

	return &Orchestrator{
		config:     cfg,
		configHash: hash,
		adapter:    ingest.NewAdapter(paths.RawDir(), cfg.Ingest, paths.Workers, rec, log),
		gate: quality.NewGate(cfg.Quality, log).
			WithStore(quality.NewStore(paths.QualityDir())).
			WithMetrics(rec),
		reconciler: reconcile.NewReconciler(cfg.Reconcile, paths.Workers, log),
		universe:   universe,
		features:   s2_features.NewBuilder(cfg.Features, universe, paths.Workers, log),
		detector:   anomaly.NewDetector(cfg.Anomaly, log.Zerolog()).WithMetrics(rec),
		trainer:    training.NewTrainer(cfg.Training, gbt, models, log).WithMetrics(rec),
		screener:   selection.NewScreener(log),
		ranker:     selection.NewRanker(cfg.Ranking, log),
		analyzer:   audit.NewAnalyzer(log),
		processed:  s2_features.NewStore(paths.ProcessedDir()),
		models:     models,
		output:     selection.NewOutput(paths.OutputDir),
		metrics:    rec,
		logger:     log.Component("orchestrator"),
	}, nil
}

// WithDatabase persists quality reports, predictions, universe snapshots
// and run records to Postgres
func (o *Orchestrator) WithDatabase(pool *pgxpool.Pool) *Orchestrator {
	o.gate.WithRepository(quality.NewRepository(pool))
	o.predictionRepo = selection.NewRepository(pool)
	o.universeRepo = s1_universe.NewRepository(pool)
	o.auditRepo = audit.NewRepository(pool)
	return o
}

// WithCache caches quality reports by input hash and ranked tables by date
func (o *Orchestrator) WithCache(cache *redis.Cache) *Orchestrator {
	o.gate.WithCache(cache)
	o.cache = cache
	return o
}

// ConfigHash returns the hash recorded in every run
func (o *Orchestrator) ConfigHash() string {
	return o.configHash
}

// Models returns the model store
func (o *Orchestrator) Models() *training.ModelStore {
	return o.models
}

// Output returns the prediction output writer
func (o *Orchestrator) Output() *selection.Output {
	return o.output
}

// Train runs ingest → quality → reconcile → features → labels → anomaly → training
func (o *Orchestrator) Train(ctx context.Context) (*TrainResult, error) {
	run := audit.NewRunSnapshot(uuid.New().String(), audit.KindTrain, o.configHash, time.Now())
	result := &TrainResult{Run: run}

	o.logger.WithRun(run.RunID, run.Kind).WithField("config_hash", o.configHash).Info("Starting training run")

	err := o.train(ctx, run, result)
	o.finish(ctx, run, err)
	return result, err
}

func (o *Orchestrator) train(ctx context.Context, run *audit.RunSnapshot, result *TrainResult) error {
	p, err := o.prepare(ctx, run, false)
	if err != nil {
		return err
	}

	var rows map[string][]contracts.LabelRow
	_ = o.stage(run, StageLabels, func() error {
		rows = labels.BuildAll(p.history, o.config.Labels.Horizons)
		return nil
	})

	if err := o.stage(run, StagePersist, func() error {
		return o.processed.Save(&s2_features.Processed{
			AsOf:      p.asOf,
			Features:  p.features.Set,
			Labels:    rows,
			Anomalies: p.anomalies,
		})
	}); err != nil {
		return err
	}

	if err := o.stage(run, StageTraining, func() error {
		report, err := o.trainer.Train(ctx, training.Input{
			AsOf:       p.asOf,
			Features:   p.features.Set,
			Labels:     rows,
			Anomalies:  p.anomalies,
			Horizons:   o.config.Labels.Horizons,
			ConfigHash: o.configHash,
		})
		if err != nil {
			return err
		}
		result.Training = report
		return nil
	}); err != nil {
		return err
	}

	run.Summary.Trained = make(map[string]string, len(result.Training.Trained))
	for h, res := range result.Training.Trained {
		run.Summary.Trained[h] = res.Artifact.ID()
	}
	run.Summary.Skipped = result.Training.Skipped

	_ = o.stage(run, StageAudit, func() error {
		o.evaluate(run, rows)
		return nil
	})
	return nil
}

// Predict scores the latest accepted date with the stored horizon models
func (o *Orchestrator) Predict(ctx context.Context, opts PredictOptions) (*PredictResult, error) {
	run := audit.NewRunSnapshot(uuid.New().String(), audit.KindPredict, o.configHash, time.Now())
	result := &PredictResult{Run: run}

	o.logger.WithRun(run.RunID, run.Kind).WithFields(map[string]interface{}{
		"config_hash":   o.configHash,
		"model_version": opts.ModelVersion,
	}).Info("Starting prediction run")

	err := o.predict(ctx, run, opts, result)
	o.finish(ctx, run, err)
	return result, err
}

func (o *Orchestrator) predict(ctx context.Context, run *audit.RunSnapshot, opts PredictOptions, result *PredictResult) error {
	p, err := o.prepare(ctx, run, true)
	if err != nil {
		return err
	}

	scorers := make(map[string]selection.Scorer)
	skipped := make(map[string]string)
	if err := o.stage(run, StageModels, func() error {
		for _, h := range o.config.Labels.Horizons {
			m, _, err := o.models.Load(h.Name, opts.ModelVersion)
			if errors.Is(err, contracts.ErrModelNotFound) {
				skipped[h.Name] = "no trained model"
				o.logger.WithField("horizon", h.Name).Warn("Horizon skipped: no trained model")
				continue
			}
			if err != nil {
				return err
			}
			scorers[h.Name] = m
		}
		if len(scorers) == 0 {
			return fmt.Errorf("%w: no horizon has a trained model", contracts.ErrModelNotFound)
		}
		return nil
	}); err != nil {
		return err
	}
	run.Summary.Skipped = skipped

	var screening *selection.Screening
	if err := o.stage(run, StageScreening, func() error {
		screening, err = o.screener.Screen(ctx, p.asOf, p.features.Set, p.anomalies)
		return err
	}); err != nil {
		return err
	}
	run.Summary.Candidates = len(screening.Candidates.Vectors)

	if err := o.stage(run, StageRanking, func() error {
		result.Table, err = o.ranker.Rank(ctx, selection.RankInput{
			RunID:      run.RunID,
			AsOf:       p.asOf,
			ConfigHash: o.configHash,
			Candidates: screening.Candidates,
			Models:     scorers,
			Skipped:    skipped,
			Anomalies:  p.anomalies,
		})
		return err
	}); err != nil {
		return err
	}
	for _, preds := range result.Table.ByHorizon {
		run.Summary.Predictions += len(preds)
	}

	if err := o.stage(run, StageOutput, func() error {
		result.CSVPath, result.JSONPath, err = o.output.Write(result.Table)
		return err
	}); err != nil {
		return err
	}
	run.Summary.OutputCSV = result.CSVPath

	o.publish(ctx, result.Table, o.universe.Build(p.asOf, p.history))
	return nil
}

// CheckQuality runs ingest and the quality gate only. Reports land in the
// quality store like in a full run; nothing downstream is built.
func (o *Orchestrator) CheckQuality(ctx context.Context) (*QualityResult, error) {
	run := audit.NewRunSnapshot(uuid.New().String(), audit.KindQuality, o.configHash, time.Now())
	result := &QualityResult{Run: run}

	accepted, err := o.load(ctx, run)
	if err == nil {
		run.AsOf = accepted.dates[len(accepted.dates)-1]
		run.Summary.Symbols = len(accepted.history)
		result.Coverage = accepted.coverage
	}
	o.finish(ctx, run, err)
	return result, err
}

// prepare runs the stages both pipelines share. With latestOnly the
// feature engine builds the last accepted date only.
func (o *Orchestrator) prepare(ctx context.Context, run *audit.RunSnapshot, latestOnly bool) (*prepared, error) {
	accepted, err := o.load(ctx, run)
	if err != nil {
		return nil, err
	}

	p := &prepared{}
	var reconciled *reconcile.Report
	if err := o.stage(run, StageReconcile, func() error {
		p.history, reconciled, err = o.reconciler.Reconcile(ctx, accepted.history)
		return err
	}); err != nil {
		return nil, err
	}
	for _, n := range reconciled.Filled {
		run.Summary.StaleFilled += n
	}
	run.Summary.MissingDates = len(reconciled.MissingDates)
	run.Summary.Symbols = reconciled.Symbols

	p.asOf = accepted.dates[len(accepted.dates)-1]
	run.AsOf = p.asOf

	if err := o.stage(run, StageFeatures, func() error {
		if latestOnly {
			p.features, err = o.features.BuildAt(ctx, p.history, p.asOf)
		} else {
			p.features, err = o.features.Build(ctx, p.history)
		}
		return err
	}); err != nil {
		return nil, err
	}
	run.Summary.Vectors = len(p.features.Set.Vectors)
	run.Summary.Illiquid = p.features.Illiquid
	run.Summary.Insufficient = p.features.Insufficient

	if err := o.stage(run, StageAnomaly, func() error {
		p.anomalies, err = o.detector.Detect(ctx, p.features.Set)
		return err
	}); err != nil {
		return nil, err
	}
	run.Summary.Anomalies = len(p.anomalies)

	return p, nil
}

// acceptedHistory is the history the quality gate let through
type acceptedHistory struct {
	history  contracts.History
	dates    []time.Time
	coverage *contracts.CoverageSummary
}

// load ingests every date and passes each through the quality gate in date
// order. Ordering is checked against the accepted history; the statistical
// checks compare against every ingested row of earlier non-hard-failed dates.
func (o *Orchestrator) load(ctx context.Context, run *audit.RunSnapshot) (*acceptedHistory, error) {
	var res *ingest.Result
	if err := o.stage(run, StageIngest, func() (err error) {
		res, err = o.adapter.Ingest(ctx)
		return err
	}); err != nil {
		return nil, err
	}

	run.Summary.IngestFailed = res.FailedDates()
	for _, d := range run.Summary.IngestFailed {
		run.Summary.ExcludedDates[d] = res.Failed[d].Error()
	}
	run.Summary.Dates = len(res.Batches) + len(res.Failed)
	if len(res.Batches) == 0 {
		return nil, contracts.Fatal("no trading dates ingested")
	}

	out := &acceptedHistory{history: make(contracts.History)}
	baseline := o.gate.NewBaseline()
	if err := o.stage(run, StageQuality, func() error {
		for _, batch := range res.Batches {
			report, err := o.gate.Check(ctx, batch, out.history, baseline)
			if err != nil {
				return err
			}
			key := contracts.DateKey(batch.Date)
			if report.HardFailed {
				run.Summary.ExcludedDates[key] = report.Err().Error()
				continue
			}
			baseline.Observe(batch.Records)

			quality.Sanitize(batch, report)
			admitted := quality.Admitted(batch, report)
			run.Summary.SoftExcluded += len(report.SoftExcluded)
			if len(admitted) == 0 {
				run.Summary.ExcludedDates[key] = "no admitted symbols"
				continue
			}
			out.history.Append(admitted)
			out.dates = append(out.dates, batch.Date)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	run.Summary.AcceptedDates = len(out.dates)
	if len(out.dates) == 0 {
		return nil, contracts.Fatal("no symbols passed quality on any of %d dates", len(res.Batches))
	}

	coverage := quality.Coverage(out.history, out.dates)
	out.coverage = coverage
	o.logger.WithFields(map[string]interface{}{
		"dates":            run.Summary.Dates,
		"accepted":         len(out.dates),
		"excluded":         len(run.Summary.ExcludedDates),
		"soft_excluded":    run.Summary.SoftExcluded,
		"average_coverage": coverage.AverageCoverage,
		"missing_weekdays": len(coverage.MissingDates),
	}).Info("Quality gate completed")

	return out, nil
}

// evaluate scores every stored prediction table whose labels have since been realized
func (o *Orchestrator) evaluate(run *audit.RunSnapshot, rows map[string][]contracts.LabelRow) {
	dates, err := o.output.Dates()
	if err != nil {
		o.logger.WithError(err).Warn("Listing past predictions failed")
		return
	}
	for _, d := range dates {
		table, err := o.output.Load(d)
		if err != nil {
			o.logger.WithError(err).WithField("as_of", contracts.DateKey(d)).Warn("Past predictions unreadable")
			continue
		}
		for _, r := range o.analyzer.Evaluate(table, rows) {
			if r.Evaluated > 0 {
				run.Summary.Performance = append(run.Summary.Performance, r)
			}
		}
	}
}

// publish stores the ranked table and the as-of universe in the optional
// database, and the table in the optional cache
func (o *Orchestrator) publish(ctx context.Context, table *contracts.RankedTable, universe *s1_universe.Universe) {
	if o.predictionRepo != nil {
		if err := o.predictionRepo.SavePredictions(ctx, table); err != nil {
			o.logger.WithError(err).Warn("Prediction DB write failed")
		}
	}
	if o.universeRepo != nil {
		if err := o.universeRepo.SaveUniverse(ctx, universe); err != nil {
			o.logger.WithError(err).Warn("Universe DB write failed")
		}
	}
	if err := o.cache.Set(ctx, redis.PredictionsKey(contracts.DateKey(table.AsOf)), table, redis.TTLPredictions); err != nil {
		o.logger.WithError(err).Warn("Prediction cache write failed")
	}
}

// stage times fn into the run record and the stage histogram
func (o *Orchestrator) stage(run *audit.RunSnapshot, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	run.AddStage(name, elapsed)
	o.metrics.ObserveStage(name, elapsed.Seconds())
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, run *audit.RunSnapshot, err error) {
	run.Finish(err, time.Now())

	if o.auditRepo != nil {
		if serr := o.auditRepo.SaveRun(ctx, run); serr != nil {
			o.logger.WithError(serr).Warn("Run record DB write failed")
		}
	}

	log := o.logger.WithRun(run.RunID, run.Kind).WithFields(map[string]interface{}{
		"as_of":    contracts.DateKey(run.AsOf),
		"duration": run.Duration,
		"stages":   len(run.Stages),
	})
	if err != nil {
		log.WithError(err).Error("Pipeline run failed")
		return
	}
	log.Info("Pipeline run completed")
}
