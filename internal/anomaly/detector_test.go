package anomaly

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/internal/s2_features"
	"github.com/wonny/smartflow/pkg/metrics"
)

var day = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func newDetector() *Detector {
	return NewDetector(pipelineconfig.Default().Anomaly, zerolog.Nop())
}

// vectorSet builds a one-row set where unspecified features are Unknown
func vectorSet(symbol string, values map[string]float64) *contracts.FeatureSet {
	names := s2_features.Names()
	v := contracts.FeatureVector{Symbol: symbol, Date: day, Values: make([]float64, len(names)), Confidence: 1}
	for i, n := range names {
		if x, ok := values[n]; ok {
			v.Values[i] = x
		} else {
			v.Values[i] = contracts.Unknown
		}
	}
	return &contracts.FeatureSet{Names: names, Vectors: []contracts.FeatureVector{v}}
}

func rules(flags []contracts.AnomalyFlag) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		out = append(out, f.Rule)
	}
	return out
}

func TestEvaluate_Rules(t *testing.T) {
	calm := map[string]float64{
		s2_features.Returns1D:       0.01,
		s2_features.VolumeMA20Ratio: 1.0,
		s2_features.DeliveryPct:     45,
		s2_features.DeliveryVsMA20:  1,
		s2_features.FIINet:          100,
		s2_features.DIINet:          50,
		s2_features.FlowConfidence:  1,
		s2_features.BulkBlockFlag:   0,
	}
	with := func(over map[string]float64) map[string]float64 {
		m := make(map[string]float64, len(calm))
		for k, v := range calm {
			m[k] = v
		}
		for k, v := range over {
			m[k] = v
		}
		return m
	}

	tests := []struct {
		name   string
		values map[string]float64
		want   []string
	}{
		{"calm day", calm, []string{}},
		{
			"jump with proportional delivery",
			with(map[string]float64{s2_features.Returns1D: 0.06, s2_features.DeliveryVsMA20: 3.5}),
			[]string{},
		},
		{
			"jump without delivery support",
			with(map[string]float64{s2_features.Returns1D: 0.06, s2_features.DeliveryVsMA20: 2.0}),
			[]string{RulePumpNoDelivery},
		},
		{
			"crash without delivery support",
			with(map[string]float64{s2_features.Returns1D: -0.07, s2_features.DeliveryVsMA20: 0}),
			[]string{RulePumpNoDelivery},
		},
		{
			"jump with unknown delivery",
			with(map[string]float64{s2_features.Returns1D: 0.05, s2_features.DeliveryVsMA20: contracts.Unknown}),
			[]string{RulePumpNoDelivery},
		},
		{
			"volume spike with positive FII",
			with(map[string]float64{s2_features.VolumeMA20Ratio: 2.5}),
			[]string{},
		},
		{
			"volume spike with only a bulk deal",
			with(map[string]float64{
				s2_features.VolumeMA20Ratio: 2.5, s2_features.FIINet: -10, s2_features.DIINet: -5,
				s2_features.BulkBlockFlag: 1,
			}),
			[]string{},
		},
		{
			"volume spike with selling institutions",
			with(map[string]float64{s2_features.VolumeMA20Ratio: 2.5, s2_features.FIINet: -10, s2_features.DIINet: -5}),
			[]string{RuleVolumeSpikeUncorroborated},
		},
		{
			"volume spike with carried-forward flows",
			with(map[string]float64{s2_features.VolumeMA20Ratio: 2.5, s2_features.FlowConfidence: 0.8}),
			[]string{RuleVolumeSpikeUncorroborated},
		},
		{
			"volume spike with low delivery",
			with(map[string]float64{s2_features.VolumeMA20Ratio: 3.5, s2_features.DeliveryPct: 25}),
			[]string{RuleVolumeSpikeLowDelivery},
		},
		{
			"price spike with FII selling",
			with(map[string]float64{
				s2_features.Returns1D: 0.08, s2_features.DeliveryVsMA20: 10, s2_features.FIINet: -200,
			}),
			[]string{RulePriceSpikeNegativeFII},
		},
	}

	d := newDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := vectorSet("ABC", tt.values)
			got := rules(d.Evaluate(set, &set.Vectors[0]))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrailingMultiple(t *testing.T) {
	// 19일 평균의 2배 → 당일 포함 20일 평균 대비 40/21
	assert.InDelta(t, 2.0, TrailingMultiple(40.0/21.0), 1e-12)
	assert.InDelta(t, 1.0, TrailingMultiple(1.0), 1e-12)
	assert.True(t, contracts.IsUnknown(TrailingMultiple(contracts.Unknown)))
	assert.Greater(t, TrailingMultiple(20), 1e9)
}

// relianceHistory is 60 quiet sessions around 40% delivery followed by a
// 68% delivery day on twice the trailing volume
func relianceHistory(spike func(r *contracts.DailyRecord)) []contracts.DailyRecord {
	var recs []contracts.DailyRecord
	dates := contracts.Weekdays(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
	price := 2500.0
	for i := 0; i < 61; i++ {
		pct := 39.0
		if i%2 == 1 {
			pct = 41.0
		}
		r := contracts.DailyRecord{
			Symbol:      "RELIANCE",
			Date:        dates[i],
			Open:        price,
			High:        price * 1.01,
			Low:         price * 0.99,
			Close:       price,
			Volume:      1_000_000,
			DeliveryQty: contracts.Present(pct * 10_000),
			DeliveryPct: contracts.Present(pct),
			FIINet:      contracts.Present(150),
			DIINet:      contracts.Present(-40),
		}
		recs = append(recs, r)
	}

	last := &recs[len(recs)-1]
	last.Close = recs[len(recs)-2].Close * 1.03
	last.High = last.Close * 1.005
	last.Volume = 2_000_000
	last.DeliveryPct = contracts.Present(68)
	last.DeliveryQty = contracts.Present(1_360_000)
	last.FIINet = contracts.Present(1200)
	spike(last)
	return recs
}

func relianceSet(recs []contracts.DailyRecord) *contracts.FeatureSet {
	t := len(recs) - 1
	values, conf := s2_features.Vector(recs, t)
	return &contracts.FeatureSet{
		Names: s2_features.Names(),
		Vectors: []contracts.FeatureVector{{
			Symbol: recs[t].Symbol, Date: recs[t].Date, Values: values, Confidence: conf,
		}},
	}
}

func TestDetect_RelianceDeliverySpike(t *testing.T) {
	ctx := context.Background()

	t.Run("corroborated by FII buying", func(t *testing.T) {
		set := relianceSet(relianceHistory(func(*contracts.DailyRecord) {}))
		v := &set.Vectors[0]

		z := set.Value(v, s2_features.DeliveryZScore20D)
		require.False(t, contracts.IsUnknown(z))
		assert.Greater(t, z, 2.0)
		assert.Greater(t, set.Value(v, s2_features.DeliveryVsMA20), 20.0)
		assert.InDelta(t, 2.0, TrailingMultiple(set.Value(v, s2_features.VolumeMA20Ratio)), 1e-6)

		flags, err := newDetector().Detect(ctx, set)
		require.NoError(t, err)
		assert.Empty(t, flags)
		assert.Len(t, Exclude(set, flags).Vectors, 1)
	})

	t.Run("no corroborating disclosures", func(t *testing.T) {
		set := relianceSet(relianceHistory(func(r *contracts.DailyRecord) {
			r.FIINet = contracts.Absent()
			r.DIINet = contracts.Absent()
			r.BulkBlock = false
		}))

		rec := metrics.New()
		flags, err := newDetector().WithMetrics(rec).Detect(ctx, set)
		require.NoError(t, err)
		require.Len(t, flags, 1)
		assert.Equal(t, RuleVolumeSpikeUncorroborated, flags[0].Rule)
		assert.Equal(t, "RELIANCE", flags[0].Symbol)
		assert.Empty(t, Exclude(set, flags).Vectors)
	})

	t.Run("stale flows do not corroborate", func(t *testing.T) {
		set := relianceSet(relianceHistory(func(r *contracts.DailyRecord) {
			r.FIINet = contracts.Stale(150, 0.8, 1)
			r.DIINet = contracts.Stale(-40, 0.8, 1)
		}))

		flags, err := newDetector().Detect(ctx, set)
		require.NoError(t, err)
		assert.Equal(t, []string{RuleVolumeSpikeUncorroborated}, rules(flags))
	})
}

func TestDetect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newDetector().Detect(ctx, vectorSet("ABC", nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeysAndExclude(t *testing.T) {
	set := vectorSet("AAA", nil)
	other := set.Vectors[0]
	other.Symbol = "BBB"
	set.Vectors = append(set.Vectors, other)

	flags := []contracts.AnomalyFlag{
		{Symbol: "AAA", Date: day, Rule: RulePumpNoDelivery},
		{Symbol: "AAA", Date: day, Rule: RuleVolumeSpikeUncorroborated},
	}
	keys := Keys(flags)
	assert.Len(t, keys, 1)
	assert.True(t, keys[contracts.RecordKey{Symbol: "AAA", Date: "2024-03-15"}])

	kept := Exclude(set, flags)
	require.Len(t, kept.Vectors, 1)
	assert.Equal(t, "BBB", kept.Vectors[0].Symbol)
	assert.Len(t, set.Vectors, 2)
}

func TestDetect_SummaryFieldsInRuleOrder(t *testing.T) {
	set := relianceSet(relianceHistory(func(r *contracts.DailyRecord) {
		r.FIINet = contracts.Absent()
		r.DIINet = contracts.Absent()
	}))

	var first string
	for i := 0; i < 5; i++ {
		var buf bytes.Buffer
		_, err := NewDetector(pipelineconfig.Default().Anomaly, zerolog.New(&buf)).Detect(context.Background(), set)
		require.NoError(t, err)

		line := buf.String()
		last := -1
		for _, rule := range Rules {
			at := strings.Index(line, `"`+rule+`":`)
			require.Greater(t, at, last, rule)
			last = at
		}
		if i == 0 {
			first = line
			continue
		}
		assert.Equal(t, first, line)
	}
}
