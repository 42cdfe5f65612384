package anomaly

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/internal/s2_features"
	"github.com/wonny/smartflow/pkg/metrics"
)

// Rule names
const (
	RulePumpNoDelivery            = "pump_no_delivery"
	RuleVolumeSpikeUncorroborated = "volume_spike_uncorroborated"
	RuleVolumeSpikeLowDelivery    = "volume_spike_low_delivery"
	RulePriceSpikeNegativeFII     = "price_spike_negative_fii"
)

// Rules lists the rule names in evaluation order
var Rules = []string{
	RulePumpNoDelivery,
	RuleVolumeSpikeUncorroborated,
	RuleVolumeSpikeLowDelivery,
	RulePriceSpikeNegativeFII,
}

// volumeWindow is the window of the volume_ma20_ratio feature
const volumeWindow = 20

const eps = 1e-9

// Detector flags (symbol, date) rows whose price action the disclosures do not support
// ⭐ SSOT: 조작성 이상치 판정은 여기서만
type Detector struct {
	config  pipelineconfig.Anomaly
	metrics *metrics.Recorder
	log     zerolog.Logger
}

// NewDetector 새 감지기 생성
func NewDetector(config pipelineconfig.Anomaly, log zerolog.Logger) *Detector {
	return &Detector{
		config: config,
		log:    log.With().Str("component", "anomaly.detector").Logger(),
	}
}

// WithMetrics attaches a metrics recorder
func (d *Detector) WithMetrics(rec *metrics.Recorder) *Detector {
	d.metrics = rec
	return d
}

// row is the subset of features the rules read
type row struct {
	ret1d       float64
	volumeRatio float64
	deliveryPct float64
	deliveryVs  float64
	fii         float64
	dii         float64
	flowConf    float64
	bulk        float64
}

func readRow(set *contracts.FeatureSet, v *contracts.FeatureVector) row {
	return row{
		ret1d:       set.Value(v, s2_features.Returns1D),
		volumeRatio: set.Value(v, s2_features.VolumeMA20Ratio),
		deliveryPct: set.Value(v, s2_features.DeliveryPct),
		deliveryVs:  set.Value(v, s2_features.DeliveryVsMA20),
		fii:         set.Value(v, s2_features.FIINet),
		dii:         set.Value(v, s2_features.DIINet),
		flowConf:    set.Value(v, s2_features.FlowConfidence),
		bulk:        set.Value(v, s2_features.BulkBlockFlag),
	}
}

// TrailingMultiple converts a ratio against the 20-day mean that includes
// today into a multiple of the preceding 19-day mean
func TrailingMultiple(ratio float64) float64 {
	if math.IsNaN(ratio) {
		return contracts.Unknown
	}
	if ratio >= volumeWindow {
		return math.Inf(1)
	}
	return (volumeWindow - 1) * ratio / (volumeWindow - ratio)
}

// corroborated reports whether any institutional signal backs the day.
// Unknown or carried-forward flows and a missing deal file do not corroborate.
func (r row) corroborated() bool {
	if r.bulk == 1 {
		return true
	}
	if r.flowConf < 1 {
		return false
	}
	return r.fii > 0 || r.dii > 0
}

// Evaluate returns every rule the vector trips
func (d *Detector) Evaluate(set *contracts.FeatureSet, v *contracts.FeatureVector) []contracts.AnomalyFlag {
	r := readRow(set, v)
	var flags []contracts.AnomalyFlag
	flag := func(rule, detail string) {
		flags = append(flags, contracts.AnomalyFlag{
			Symbol: v.Symbol,
			Date:   v.Date,
			Rule:   rule,
			Detail: detail,
		})
	}

	// 급등락인데 인도율 증가가 비례하지 않음
	if !math.IsNaN(r.ret1d) && math.Abs(r.ret1d) >= d.config.PriceJump-eps {
		support := d.config.MinDeliverySupport * math.Abs(r.ret1d) * 100
		switch {
		case math.IsNaN(r.deliveryVs):
			flag(RulePumpNoDelivery, fmt.Sprintf("return %.4f with unknown delivery", r.ret1d))
		case r.deliveryVs < support:
			flag(RulePumpNoDelivery, fmt.Sprintf("return %.4f, delivery %+.2fpp < %.2fpp", r.ret1d, r.deliveryVs, support))
		}
	}

	// 거래량 급증인데 기관/딜 뒷받침 없음
	if m := TrailingMultiple(r.volumeRatio); !math.IsNaN(m) && m >= d.config.CorroborationSpike-eps && !r.corroborated() {
		flag(RuleVolumeSpikeUncorroborated, fmt.Sprintf("volume %.2fx trailing mean without FII/DII/deal support", m))
	}

	if !math.IsNaN(r.volumeRatio) && r.volumeRatio > d.config.VolumeSpike &&
		!math.IsNaN(r.deliveryPct) && r.deliveryPct < d.config.LowDeliveryPct {
		flag(RuleVolumeSpikeLowDelivery, fmt.Sprintf("volume ratio %.2f, delivery %.1f%%", r.volumeRatio, r.deliveryPct))
	}

	if !math.IsNaN(r.ret1d) && r.ret1d > d.config.PriceJump && !math.IsNaN(r.fii) && r.fii < 0 {
		flag(RulePriceSpikeNegativeFII, fmt.Sprintf("return %.4f, FII net %.2f", r.ret1d, r.fii))
	}

	return flags
}

// Detect evaluates every vector of the set in order
func (d *Detector) Detect(ctx context.Context, set *contracts.FeatureSet) ([]contracts.AnomalyFlag, error) {
	flags := make([]contracts.AnomalyFlag, 0)
	byRule := make(map[string]int)

	for i := range set.Vectors {
		select {
		case <-ctx.Done():
			d.log.Warn().Msg("context cancelled during anomaly detection")
			return nil, ctx.Err()
		default:
		}

		for _, f := range d.Evaluate(set, &set.Vectors[i]) {
			flags = append(flags, f)
			byRule[f.Rule]++
			d.metrics.RecordAnomaly(f.Rule)

			d.log.Debug().
				Str("symbol", f.Symbol).
				Str("date", contracts.DateKey(f.Date)).
				Str("rule", f.Rule).
				Str("detail", f.Detail).
				Msg("anomaly flagged")
		}
	}

	ev := d.log.Info().
		Int("vectors", len(set.Vectors)).
		Int("flags", len(flags))
	for _, rule := range Rules {
		ev = ev.Int(rule, byRule[rule])
	}
	ev.Msg("anomaly detection completed")

	return flags, nil
}

// Keys returns the flagged (symbol, date) set
func Keys(flags []contracts.AnomalyFlag) map[contracts.RecordKey]bool {
	out := make(map[contracts.RecordKey]bool, len(flags))
	for _, f := range flags {
		out[contracts.RecordKey{Symbol: f.Symbol, Date: contracts.DateKey(f.Date)}] = true
	}
	return out
}

// Exclude returns a copy of the set without flagged rows
func Exclude(set *contracts.FeatureSet, flags []contracts.AnomalyFlag) *contracts.FeatureSet {
	flagged := Keys(flags)
	out := &contracts.FeatureSet{
		Names:   set.Names,
		Vectors: make([]contracts.FeatureVector, 0, len(set.Vectors)),
	}
	for _, v := range set.Vectors {
		if flagged[contracts.RecordKey{Symbol: v.Symbol, Date: contracts.DateKey(v.Date)}] {
			continue
		}
		out.Vectors = append(out.Vectors, v)
	}
	return out
}
