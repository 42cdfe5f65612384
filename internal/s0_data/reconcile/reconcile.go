package reconcile

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/pkg/logger"
)

// Reconciler fills short companion gaps with decayed stale values.
// Prices, volumes and bulk/block events are never fabricated.
// ⭐ SSOT: 부분 데이터 보정 규칙
type Reconciler struct {
	config  pipelineconfig.Reconcile
	workers int
	logger  *logger.Logger
}

// Report summarises one reconcile pass
type Report struct {
	Symbols      int            `json:"symbols"`
	Records      int            `json:"records"`
	Filled       map[string]int `json:"filled"`        // field → stale fills
	Unfilled     map[string]int `json:"unfilled"`      // field → absent beyond lookback
	MissingDates []time.Time    `json:"missing_dates"` // 평일 중 데이터 없는 날 (보정 안 함)
}

// NewReconciler creates a new reconciler
func NewReconciler(config pipelineconfig.Reconcile, workers int, log *logger.Logger) *Reconciler {
	if workers < 1 {
		workers = 1
	}
	return &Reconciler{
		config:  config,
		workers: workers,
		logger:  log.Component("reconcile"),
	}
}

// companion accessors in a fixed order
type accessor struct {
	name string
	get  func(r *contracts.DailyRecord) *contracts.Field
}

var companions = []accessor{
	{"delivery_qty", func(r *contracts.DailyRecord) *contracts.Field { return &r.DeliveryQty }},
	{"delivery_pct", func(r *contracts.DailyRecord) *contracts.Field { return &r.DeliveryPct }},
	{"fii_net", func(r *contracts.DailyRecord) *contracts.Field { return &r.FIINet }},
	{"dii_net", func(r *contracts.DailyRecord) *contracts.Field { return &r.DIINet }},
	{"oi_fii_long", func(r *contracts.DailyRecord) *contracts.Field { return &r.OI.FIILong }},
	{"oi_fii_short", func(r *contracts.DailyRecord) *contracts.Field { return &r.OI.FIIShort }},
	{"oi_dii_long", func(r *contracts.DailyRecord) *contracts.Field { return &r.OI.DIILong }},
	{"oi_dii_short", func(r *contracts.DailyRecord) *contracts.Field { return &r.OI.DIIShort }},
	{"oi_client_long", func(r *contracts.DailyRecord) *contracts.Field { return &r.OI.ClientLong }},
	{"oi_client_short", func(r *contracts.DailyRecord) *contracts.Field { return &r.OI.ClientShort }},
	{"oi_pro_long", func(r *contracts.DailyRecord) *contracts.Field { return &r.OI.ProLong }},
	{"oi_pro_short", func(r *contracts.DailyRecord) *contracts.Field { return &r.OI.ProShort }},
}

// Reconcile returns a reconciled copy of history; the input is not modified.
// Staleness is counted in trading days of the accepted calendar.
func (r *Reconciler) Reconcile(ctx context.Context, history contracts.History) (contracts.History, *Report, error) {
	calendar := history.Dates()
	index := make(map[string]int, len(calendar))
	for i, d := range calendar {
		index[contracts.DateKey(d)] = i
	}

	symbols := history.Symbols()
	results := make([][]contracts.DailyRecord, len(symbols))
	report := &Report{
		Symbols:  len(symbols),
		Filled:   make(map[string]int),
		Unfilled: make(map[string]int),
	}
	report.MissingDates = contracts.MissingWeekdays(calendar)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, sym := range symbols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, filled, unfilled := r.reconcileSymbol(history[sym], index)
			results[i] = out

			mu.Lock()
			for k, v := range filled {
				report.Filled[k] += v
			}
			for k, v := range unfilled {
				report.Unfilled[k] += v
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := make(contracts.History, len(symbols))
	for i, sym := range symbols {
		out[sym] = results[i]
		report.Records += len(results[i])
	}

	r.logger.WithFields(map[string]interface{}{
		"symbols":       report.Symbols,
		"records":       report.Records,
		"missing_dates": len(report.MissingDates),
	}).Info("Reconcile completed")

	return out, report, nil
}

func (r *Reconciler) reconcileSymbol(recs []contracts.DailyRecord, index map[string]int) ([]contracts.DailyRecord, map[string]int, map[string]int) {
	out := make([]contracts.DailyRecord, len(recs))
	copy(out, recs)
	filled := make(map[string]int)
	unfilled := make(map[string]int)

	for _, acc := range companions {
		lastValue, lastPos, seen := 0.0, 0, false
		for i := range out {
			pos := index[contracts.DateKey(out[i].Date)]
			f := acc.get(&out[i])
			if f.State == contracts.FieldPresent {
				lastValue, lastPos, seen = f.Value, pos, true
				continue
			}
			if f.Known() {
				continue
			}

			age := pos - lastPos
			if seen && age <= r.config.LookbackDays {
				*f = contracts.Stale(lastValue, math.Pow(r.config.Decay, float64(age)), age)
				filled[acc.name]++
				continue
			}
			unfilled[acc.name]++
		}
	}

	return out, filled, unfilled
}
