package quality

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/pkg/logger"
	"github.com/wonny/smartflow/pkg/metrics"
	"github.com/wonny/smartflow/pkg/redis"
)

// Gate runs the fixed quality checks on one date
// ⭐ SSOT: S0 → S1 품질 검증
type Gate struct {
	config pipelineconfig.Quality
	logger *logger.Logger

	mu     sync.RWMutex
	memo   map[string]*contracts.QualityReport // input hash → report
	cache  *redis.Cache
	store  *Store
	repo   *Repository
	record *metrics.Recorder
}

var _ contracts.QualityGate = (*Gate)(nil)

// NewGate creates a new quality gate
func NewGate(config pipelineconfig.Quality, log *logger.Logger) *Gate {
	return &Gate{
		config: config,
		logger: log.Component("quality"),
		memo:   make(map[string]*contracts.QualityReport),
	}
}

// WithCache shares reports across processes through Redis
func (g *Gate) WithCache(cache *redis.Cache) *Gate {
	g.cache = cache
	return g
}

// WithStore persists every report as a JSON file
func (g *Gate) WithStore(store *Store) *Gate {
	g.store = store
	return g
}

// WithRepository persists every report to Postgres
func (g *Gate) WithRepository(repo *Repository) *Gate {
	g.repo = repo
	return g
}

// WithMetrics records exclusions
func (g *Gate) WithMetrics(rec *metrics.Recorder) *Gate {
	g.record = rec
	return g
}

// NewBaseline returns an empty baseline sized for the volume window
func (g *Gate) NewBaseline() *contracts.Baseline {
	return contracts.NewBaseline(g.config.VolumeWindow)
}

// Check validates one date against the accepted history (ordering) and the
// ingested baseline (statistical checks). Unchanged input returns the cached
// report.
func (g *Gate) Check(ctx context.Context, batch *contracts.DateBatch, history contracts.History, baseline *contracts.Baseline) (*contracts.QualityReport, error) {
	hash, err := g.InputHash(batch, history, baseline)
	if err != nil {
		return nil, fmt.Errorf("hash input: %w", err)
	}

	if report := g.lookup(ctx, hash); report != nil {
		return report, nil
	}

	report := g.evaluate(batch, prior{history: history, baseline: baseline})
	report.InputHash = hash

	g.remember(ctx, report)
	g.persist(ctx, report)
	g.observe(report)

	return report, nil
}

func (g *Gate) evaluate(batch *contracts.DateBatch, in prior) *contracts.QualityReport {
	report := &contracts.QualityReport{
		Date:         batch.Date,
		Checks:       make([]contracts.CheckResult, 0, len(checks)),
		SoftExcluded: make(map[string][]string),
		Symbols:      len(batch.Records),
	}

	for _, c := range checks {
		res := c.run(g.config, batch, in)
		res.Name = c.name
		res.Class = c.class
		report.Checks = append(report.Checks, res)

		switch res.Status {
		case contracts.StatusHardFail:
			report.HardFailed = true
		case contracts.StatusSoftFail:
			report.ReducedConfidence = true
			for _, sym := range res.Symbols {
				report.SoftExcluded[sym] = append(report.SoftExcluded[sym], c.name)
			}
		}
	}

	return report
}

func (g *Gate) lookup(ctx context.Context, hash string) *contracts.QualityReport {
	g.mu.RLock()
	report, ok := g.memo[hash]
	g.mu.RUnlock()
	if ok {
		return report
	}

	var cached contracts.QualityReport
	hit, err := g.cache.Get(ctx, redis.QualityReportKey(hash), &cached)
	if err != nil {
		g.logger.WithError(err).Warn("Quality cache read failed")
		return nil
	}
	if !hit {
		return nil
	}
	if cached.SoftExcluded == nil {
		cached.SoftExcluded = make(map[string][]string)
	}

	g.mu.Lock()
	g.memo[hash] = &cached
	g.mu.Unlock()
	return &cached
}

func (g *Gate) remember(ctx context.Context, report *contracts.QualityReport) {
	g.mu.Lock()
	g.memo[report.InputHash] = report
	g.mu.Unlock()

	if err := g.cache.Set(ctx, redis.QualityReportKey(report.InputHash), report, redis.TTLQuality); err != nil {
		g.logger.WithError(err).Warn("Quality cache write failed")
	}
}

// persist writes the audit copies; failures are logged, never fatal
func (g *Gate) persist(ctx context.Context, report *contracts.QualityReport) {
	if g.store != nil {
		if err := g.store.Save(report); err != nil {
			g.logger.WithError(err).Warn("Quality report file write failed")
		}
	}
	if g.repo != nil {
		if err := g.repo.SaveReport(ctx, report); err != nil {
			g.logger.WithError(err).Warn("Quality report DB write failed")
		}
	}
}

func (g *Gate) observe(report *contracts.QualityReport) {
	log := g.logger.WithFields(map[string]interface{}{
		"date":          contracts.DateKey(report.Date),
		"symbols":       report.Symbols,
		"hard_failed":   report.HardFailed,
		"soft_excluded": len(report.SoftExcluded),
	})

	if report.HardFailed {
		g.record.RecordDateExcluded("quality")
		log.WithError(report.Err()).Warn("Date excluded by quality gate")
		return
	}
	g.record.RecordSoftExclusions(len(report.SoftExcluded))
	if report.ReducedConfidence {
		log.WithField("failed", report.FailedChecks()).Info("Date admitted with reduced confidence")
		return
	}
	log.Debug("Date passed quality gate")
}

// hashInput is the canonical content a report depends on
type hashInput struct {
	Config     pipelineconfig.Quality
	Date       time.Time
	Records    []contracts.DailyRecord
	Duplicates []string
	Present    map[string]bool
	LastDate   time.Time
	Tail       map[string][]contracts.Bar
}

// InputHash fingerprints the batch, the last accepted date and the baseline
// bars the statistical checks read
func (g *Gate) InputHash(batch *contracts.DateBatch, history contracts.History, baseline *contracts.Baseline) (string, error) {
	in := hashInput{
		Config:     g.config,
		Date:       batch.Date,
		Records:    batch.Records,
		Duplicates: batch.Duplicates,
		Present:    batch.Present,
		Tail:       make(map[string][]contracts.Bar, len(batch.Records)),
	}
	if last, ok := lastAccepted(history); ok {
		in.LastDate = last.Date
	}
	for _, r := range batch.Records {
		in.Tail[r.Symbol] = baseline.Bars(r.Symbol)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&in); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// Sanitize drops market-wide flow values from a batch whose fii_dii_sanity check failed
func Sanitize(batch *contracts.DateBatch, report *contracts.QualityReport) {
	res, ok := report.Check(CheckFlowSanity)
	if !ok || res.Status == contracts.StatusPass {
		return
	}
	for i := range batch.Records {
		batch.Records[i].FIINet = contracts.Absent()
		batch.Records[i].DIINet = contracts.Absent()
	}
}

// Admitted returns the batch rows the report lets through, in symbol order
func Admitted(batch *contracts.DateBatch, report *contracts.QualityReport) []contracts.DailyRecord {
	out := make([]contracts.DailyRecord, 0, len(batch.Records))
	for _, r := range batch.Records {
		if report.Admits(r.Symbol) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
