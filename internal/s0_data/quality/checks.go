package quality

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
)

// Check names in evaluation order
const (
	CheckDateMonotonicity = "date_monotonicity"
	CheckDuplicates       = "duplicate_records"
	CheckSymbolSet        = "symbol_set_consistency"
	CheckPriceContinuity  = "price_continuity"
	CheckVolume           = "volume_plausibility"
	CheckDeliveryBounds   = "delivery_pct_bounds"
	CheckFlowSanity       = "fii_dii_sanity"
	CheckOutlier          = "outlier_magnitude"
)

// madScale converts a median absolute deviation into a normal-consistent sigma
const madScale = 0.6745

// prior is what a date is measured against
type prior struct {
	history  contracts.History   // accepted rows
	baseline *contracts.Baseline // ingested bars, soft-excluded rows included
}

type checkFunc func(cfg pipelineconfig.Quality, batch *contracts.DateBatch, in prior) contracts.CheckResult

type check struct {
	name  string
	class contracts.CheckClass
	run   checkFunc
}

// checks is the fixed evaluation order. Structural ⇒ hard, statistical ⇒ soft.
var checks = []check{
	{CheckDateMonotonicity, contracts.CheckStructural, checkDateMonotonicity},
	{CheckDuplicates, contracts.CheckStructural, checkDuplicates},
	{CheckSymbolSet, contracts.CheckStructural, checkSymbolSet},
	{CheckPriceContinuity, contracts.CheckStatistical, checkPriceContinuity},
	{CheckVolume, contracts.CheckStatistical, checkVolume},
	{CheckDeliveryBounds, contracts.CheckStatistical, checkDeliveryBounds},
	{CheckFlowSanity, contracts.CheckStatistical, checkFlowSanity},
	{CheckOutlier, contracts.CheckStatistical, checkOutlier},
}

// CheckNames returns the check names in evaluation order
func CheckNames() []string {
	out := make([]string, len(checks))
	for i, c := range checks {
		out[i] = c.name
	}
	return out
}

func pass(score float64, detail string) contracts.CheckResult {
	return contracts.CheckResult{Status: contracts.StatusPass, Score: score, Detail: detail}
}

func fail(score float64, detail string, symbols []string) contracts.CheckResult {
	sort.Strings(symbols)
	return contracts.CheckResult{Status: contracts.StatusHardFail, Score: score, Detail: detail, Symbols: symbols}
}

// lastAccepted returns the latest date in history
func lastAccepted(history contracts.History) (last contracts.DailyRecord, ok bool) {
	for _, recs := range history {
		if n := len(recs); n > 0 && (!ok || recs[n-1].Date.After(last.Date)) {
			last, ok = recs[n-1], true
		}
	}
	return last, ok
}

func checkDateMonotonicity(_ pipelineconfig.Quality, batch *contracts.DateBatch, in prior) contracts.CheckResult {
	for _, r := range batch.Records {
		if !r.Date.Equal(batch.Date) {
			return fail(1, fmt.Sprintf("%s carries %s, batch is %s", r.Symbol, contracts.DateKey(r.Date), contracts.DateKey(batch.Date)), []string{r.Symbol})
		}
	}
	if last, ok := lastAccepted(in.history); ok && !batch.Date.After(last.Date) {
		return fail(1, fmt.Sprintf("date %s not after last accepted %s", contracts.DateKey(batch.Date), contracts.DateKey(last.Date)), nil)
	}
	return pass(0, "")
}

func checkDuplicates(_ pipelineconfig.Quality, batch *contracts.DateBatch, _ prior) contracts.CheckResult {
	if n := len(batch.Duplicates); n > 0 {
		return fail(float64(n), fmt.Sprintf("%d duplicate (symbol,date) rows", n), append([]string(nil), batch.Duplicates...))
	}
	return pass(0, "")
}

func checkSymbolSet(cfg pipelineconfig.Quality, batch *contracts.DateBatch, _ prior) contracts.CheckResult {
	if len(batch.Records) == 0 {
		return fail(0, "no bhavcopy symbols", nil)
	}
	if !batch.Present[contracts.SourceDelivery] {
		return pass(1, "delivery file absent")
	}

	known := 0
	for _, r := range batch.Records {
		if r.DeliveryPct.Known() {
			known++
		}
	}
	overlap := float64(known) / float64(len(batch.Records))
	if overlap < cfg.MinSymbolOverlap {
		return fail(overlap, fmt.Sprintf("delivery overlap %.2f < %.2f", overlap, cfg.MinSymbolOverlap), nil)
	}
	return pass(overlap, "")
}

// checkPriceContinuity compares each close with the symbol's last ingested
// close, so a lasting step change fails on its first day only.
func checkPriceContinuity(cfg pipelineconfig.Quality, batch *contracts.DateBatch, in prior) contracts.CheckResult {
	var bad []string
	worst := 0.0
	for _, r := range batch.Records {
		if r.Open <= 0 || r.High <= 0 || r.Low <= 0 || r.Close <= 0 || r.High < r.Low {
			bad = append(bad, r.Symbol)
			continue
		}
		p, ok := in.baseline.Last(r.Symbol)
		if !ok {
			continue
		}
		jump := math.Abs(r.Close/p.Close - 1)
		worst = math.Max(worst, jump)
		if jump > cfg.MaxPriceJump {
			bad = append(bad, r.Symbol)
		}
	}
	return statistical(worst, bad, "price discontinuity")
}

func checkVolume(cfg pipelineconfig.Quality, batch *contracts.DateBatch, in prior) contracts.CheckResult {
	var bad []string
	worst := 0.0
	for _, r := range batch.Records {
		if r.Volume <= 0 {
			bad = append(bad, r.Symbol)
			continue
		}
		med, ok := trailingMedianVolume(in.baseline.Bars(r.Symbol), cfg.VolumeWindow)
		if !ok {
			continue
		}
		mult := r.Volume / med
		worst = math.Max(worst, mult)
		if mult > cfg.MaxVolumeMultiple {
			bad = append(bad, r.Symbol)
		}
	}
	return statistical(worst, bad, "implausible volume")
}

// trailingMedianVolume is the median of the last window positive volumes
func trailingMedianVolume(bars []contracts.Bar, window int) (float64, bool) {
	start := len(bars) - window
	if start < 0 {
		start = 0
	}
	vols := make([]float64, 0, window)
	for _, r := range bars[start:] {
		if r.Volume > 0 {
			vols = append(vols, r.Volume)
		}
	}
	if len(vols) == 0 {
		return 0, false
	}
	sort.Float64s(vols)
	return stat.Quantile(0.5, stat.Empirical, vols, nil), true
}

func checkDeliveryBounds(_ pipelineconfig.Quality, batch *contracts.DateBatch, _ prior) contracts.CheckResult {
	var bad []string
	worst := 0.0
	for _, r := range batch.Records {
		pct, okPct := r.DeliveryPct.Get()
		qty, okQty := r.DeliveryQty.Get()
		outOfRange := okPct && (pct < 0 || pct > 100)
		excess := okQty && qty > r.Volume
		if okPct {
			worst = math.Max(worst, math.Max(pct-100, -pct))
		}
		if outOfRange || excess {
			bad = append(bad, r.Symbol)
		}
	}
	return statistical(math.Max(worst, 0), bad, "delivery out of bounds")
}

// checkFlowSanity judges the market-wide flow. A failure marks the date's
// FII/DII values unusable (see Sanitize) rather than excluding every symbol.
func checkFlowSanity(cfg pipelineconfig.Quality, batch *contracts.DateBatch, _ prior) contracts.CheckResult {
	if len(batch.Records) == 0 {
		return pass(0, "")
	}
	r := batch.Records[0]
	worst := 0.0
	for _, f := range []contracts.Field{r.FIINet, r.DIINet} {
		if v, ok := f.Get(); ok {
			worst = math.Max(worst, math.Abs(v))
		}
	}
	if worst > cfg.MaxFlowAbsCrore {
		res := fail(worst, fmt.Sprintf("|net flow| %.0f crore > %.0f", worst, cfg.MaxFlowAbsCrore), nil)
		res.Status = contracts.StatusSoftFail
		return res
	}
	return pass(worst, "")
}

func checkOutlier(cfg pipelineconfig.Quality, batch *contracts.DateBatch, in prior) contracts.CheckResult {
	symbols := make([]string, 0, len(batch.Records))
	returns := make([]float64, 0, len(batch.Records))
	for _, r := range batch.Records {
		p, ok := in.baseline.Last(r.Symbol)
		if !ok || r.Close <= 0 {
			continue
		}
		symbols = append(symbols, r.Symbol)
		returns = append(returns, r.Close/p.Close-1)
	}
	if len(returns) < cfg.MinOutlierSymbols {
		return pass(0, fmt.Sprintf("%d symbols with a prior close, need %d", len(returns), cfg.MinOutlierSymbols))
	}

	med := median(returns)
	dev := make([]float64, len(returns))
	for i, r := range returns {
		dev[i] = math.Abs(r - med)
	}
	mad := median(dev)
	if mad == 0 {
		return pass(0, "zero dispersion")
	}

	var bad []string
	worst := 0.0
	for i, r := range returns {
		z := madScale * math.Abs(r-med) / mad
		worst = math.Max(worst, z)
		if z > cfg.OutlierZ {
			bad = append(bad, symbols[i])
		}
	}
	return statistical(worst, bad, "robust z outlier")
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func statistical(score float64, bad []string, what string) contracts.CheckResult {
	if len(bad) == 0 {
		return pass(score, "")
	}
	res := fail(score, fmt.Sprintf("%d symbols: %s", len(bad), what), bad)
	res.Status = contracts.StatusSoftFail
	return res
}
