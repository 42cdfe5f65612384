package s2_features

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/internal/s1_universe"
	"github.com/wonny/smartflow/pkg/logger"
)

// indicatorWindow bounds how many trailing sessions any indicator reads
const indicatorWindow = 60

// Builder turns reconciled history into feature vectors
// ⭐ SSOT: 피처 생성은 여기서만 (미래 데이터 참조 금지)
type Builder struct {
	config  pipelineconfig.Features
	gate    *s1_universe.Gate
	workers int
	logger  *logger.Logger
}

// Result is a built feature set plus what was left out
type Result struct {
	Set          *contracts.FeatureSet
	Illiquid     int
	Insufficient int
	Excluded     map[string]string // symbol → liquidity reason (as-of builds only)
}

// NewBuilder creates a new feature builder
func NewBuilder(config pipelineconfig.Features, gate *s1_universe.Gate, workers int, log *logger.Logger) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{
		config:  config,
		gate:    gate,
		workers: workers,
		logger:  log.Component("features"),
	}
}

// Vector computes the feature row of recs[t] from recs[..t] only
func Vector(recs []contracts.DailyRecord, t int) ([]float64, float64) {
	start := t + 1 - indicatorWindow
	if start < 0 {
		start = 0
	}
	s := newSeries(recs[start : t+1])

	values := make(map[string]float64, len(nameIndex))
	technical(s, values)
	smartMoney(s, values)

	names := Names()
	vec := make([]float64, len(names))
	for i, n := range names {
		v, ok := values[n]
		if !ok || math.IsInf(v, 0) {
			v = contracts.Unknown
		}
		vec[i] = v
	}

	today := recs[t]
	return vec, confidence(&today)
}

// confidence is the lowest weight among the stale companion inputs of a row
func confidence(r *contracts.DailyRecord) float64 {
	c := 1.0
	fields := []contracts.Field{r.DeliveryPct, r.FIINet, r.DIINet}
	for _, f := range r.OI.Fields() {
		fields = append(fields, *f)
	}
	for _, f := range fields {
		if f.State == contracts.FieldStale {
			c = math.Min(c, f.Weight)
		}
	}
	return c
}

// Build computes a vector for every eligible (symbol, date) in history
func (b *Builder) Build(ctx context.Context, history contracts.History) (*Result, error) {
	return b.build(ctx, history, nil)
}

// BuildAt computes vectors for one date only
func (b *Builder) BuildAt(ctx context.Context, history contracts.History, date time.Time) (*Result, error) {
	return b.build(ctx, history, &date)
}

type symbolResult struct {
	vectors      []contracts.FeatureVector
	illiquid     int
	insufficient int
	reason       string
}

func (b *Builder) build(ctx context.Context, history contracts.History, at *time.Time) (*Result, error) {
	symbols := history.Symbols()
	results := make([]symbolResult, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, sym := range symbols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.buildSymbol(history[sym], at)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Set:      &contracts.FeatureSet{Names: Names()},
		Excluded: make(map[string]string),
	}
	for i, r := range results {
		res.Set.Vectors = append(res.Set.Vectors, r.vectors...)
		res.Illiquid += r.illiquid
		res.Insufficient += r.insufficient
		if r.reason != "" {
			res.Excluded[symbols[i]] = r.reason
		}
	}
	SortVectors(res.Set.Vectors)

	b.logger.WithFields(map[string]interface{}{
		"symbols":      len(symbols),
		"vectors":      len(res.Set.Vectors),
		"illiquid":     res.Illiquid,
		"insufficient": res.Insufficient,
	}).Info("Feature build completed")

	return res, nil
}

func (b *Builder) buildSymbol(recs []contracts.DailyRecord, at *time.Time) symbolResult {
	var out symbolResult

	from, to := 0, len(recs)-1
	if at != nil {
		i := sort.Search(len(recs), func(i int) bool { return !recs[i].Date.Before(*at) })
		if i >= len(recs) || !recs[i].Date.Equal(*at) {
			return out
		}
		from, to = i, i
	}

	for t := from; t <= to; t++ {
		if t+1 < b.config.MinLookback {
			out.insufficient++
			if at != nil {
				out.reason = contracts.ErrInsufficientHistory.Error()
			}
			continue
		}
		if _, reason := b.gate.Admit(recs, t); reason != "" {
			out.illiquid++
			if at != nil {
				out.reason = reason
			}
			continue
		}

		values, conf := Vector(recs, t)
		out.vectors = append(out.vectors, contracts.FeatureVector{
			Symbol:     recs[t].Symbol,
			Date:       recs[t].Date,
			Values:     values,
			Confidence: conf,
		})
	}
	return out
}

// SortVectors orders vectors by (date, symbol)
func SortVectors(vs []contracts.FeatureVector) {
	sort.Slice(vs, func(i, j int) bool {
		if !vs[i].Date.Equal(vs[j].Date) {
			return vs[i].Date.Before(vs[j].Date)
		}
		return vs[i].Symbol < vs[j].Symbol
	})
}
