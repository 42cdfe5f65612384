package s2_features

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/internal/s1_universe"
	"github.com/wonny/smartflow/pkg/logger"
)

// synthetic builds n sessions with a gentle trend and full companion data
func synthetic(symbol string, n int, volume float64) []contracts.DailyRecord {
	out := make([]contracts.DailyRecord, n)
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		c := 100 + float64(i)*0.5 + math.Sin(float64(i))*2
		out[i] = contracts.DailyRecord{
			Symbol:      symbol,
			Date:        d.AddDate(0, 0, i),
			Open:        c - 0.5,
			High:        c + 1 + math.Abs(math.Cos(float64(i))),
			Low:         c - 1,
			Close:       c,
			Volume:      volume + float64(i%7)*1000,
			DeliveryQty: contracts.Present(volume * 0.5),
			DeliveryPct: contracts.Present(40 + float64(i%5)),
			FIINet:      contracts.Present(float64(i%9-4) * 100),
			DIINet:      contracts.Present(float64(i%4-2) * 150),
			OI: contracts.ParticipantOI{
				FIILong: contracts.Present(1000 + float64(i)), FIIShort: contracts.Present(900),
				ClientLong: contracts.Present(500), ClientShort: contracts.Present(650),
			},
			BulkBlock: i%17 == 0,
		}
	}
	return out
}

func newTestBuilder() *Builder {
	cfg := pipelineconfig.Default()
	return NewBuilder(cfg.Features, s1_universe.NewGate(cfg.Universe), 3, logger.Nop())
}

func TestVector_NoLookahead(t *testing.T) {
	recs := synthetic("TCS", 120, 200000)
	const at = 80

	before, confBefore := Vector(recs, at)

	// 미래 레코드를 모두 변경
	for i := at + 1; i < len(recs); i++ {
		recs[i].Close *= 3
		recs[i].High *= 3
		recs[i].Volume *= 10
		recs[i].DeliveryPct = contracts.Present(99)
		recs[i].FIINet = contracts.Present(-99999)
		recs[i].BulkBlock = true
	}
	after, confAfter := Vector(recs, at)

	require.Len(t, before, len(Names()))
	for i := range before {
		if math.IsNaN(before[i]) {
			assert.True(t, math.IsNaN(after[i]), Names()[i])
			continue
		}
		assert.Equal(t, before[i], after[i], Names()[i])
	}
	assert.Equal(t, confBefore, confAfter)
}

func TestVector_AbsentIsUnknownNotZero(t *testing.T) {
	recs := synthetic("TCS", 70, 200000)
	for i := range recs {
		recs[i].DeliveryPct = contracts.Absent()
		recs[i].DeliveryQty = contracts.Absent()
		recs[i].FIINet = contracts.Absent()
		recs[i].OI = contracts.ParticipantOI{}
	}

	vec, _ := Vector(recs, len(recs)-1)
	idx := func(name string) float64 { return vec[nameIndex[name]] }

	for _, name := range []string{DeliveryPct, DeliveryZScore20D, DeliveryTrend5D, FIINet, FIINetMA5, FIIDIIDivergence, OILongShortFII, OIChange5D} {
		assert.True(t, math.IsNaN(idx(name)), name)
	}
	assert.Equal(t, 0.0, idx(DeliveryConfidence), "absent delivery has zero weight")
	assert.False(t, math.IsNaN(idx(DIINet)), "DII stays known")
	assert.False(t, math.IsNaN(idx(Returns1D)))
	assert.False(t, math.IsNaN(idx(RSI14)))
}

func TestVector_StaleLowersConfidence(t *testing.T) {
	recs := synthetic("TCS", 70, 200000)
	last := len(recs) - 1
	recs[last].DeliveryPct = contracts.Stale(42, 0.64, 2)

	vec, conf := Vector(recs, last)
	assert.Equal(t, 42.0, vec[nameIndex[DeliveryPct]])
	assert.Equal(t, 0.64, vec[nameIndex[DeliveryConfidence]])
	assert.Equal(t, 0.64, conf)
}

func TestVector_Values(t *testing.T) {
	recs := synthetic("TCS", 70, 200000)
	last := len(recs) - 1
	vec, _ := Vector(recs, last)

	assert.InDelta(t, recs[last].Close/recs[last-1].Close-1, vec[nameIndex[Returns1D]], 1e-12)
	assert.InDelta(t, recs[last].Close/recs[last-5].Close-1, vec[nameIndex[Returns5D]], 1e-12)
	assert.InDelta(t, math.Log1p(recs[last].Volume), vec[nameIndex[LogVolume]], 1e-12)

	rsi := vec[nameIndex[RSI14]]
	assert.True(t, rsi >= 0 && rsi <= 100)

	// 69 % 17 != 0, 68 % 17 == 0 → 1 session ago
	assert.Equal(t, 0.0, vec[nameIndex[BulkBlockFlag]])
	assert.Equal(t, 1.0, vec[nameIndex[BulkBlockRecency]])
}

func TestBuilder_LookbackAndLiquidity(t *testing.T) {
	h := contracts.History{
		"LIQUID": synthetic("LIQUID", 70, 200000),
		"THIN":   synthetic("THIN", 70, 500),
		"YOUNG":  synthetic("YOUNG", 30, 200000),
	}

	res, err := newTestBuilder().Build(context.Background(), h)
	require.NoError(t, err)

	// LIQUID: 60번째 세션부터 11개
	assert.Len(t, res.Set.Vectors, 11)
	for _, v := range res.Set.Vectors {
		assert.Equal(t, "LIQUID", v.Symbol)
	}
	assert.Equal(t, 11, res.Illiquid)
	assert.Equal(t, 59+59+30, res.Insufficient)
	assert.Equal(t, Names(), res.Set.Names)
}

func TestBuilder_BuildAtDeterministic(t *testing.T) {
	h := contracts.History{
		"AAA": synthetic("AAA", 80, 300000),
		"BBB": synthetic("BBB", 80, 250000),
		"CCC": synthetic("CCC", 80, 100),
	}
	date := h["AAA"][79].Date

	first, err := newTestBuilder().BuildAt(context.Background(), h, date)
	require.NoError(t, err)
	second, err := newTestBuilder().BuildAt(context.Background(), h, date)
	require.NoError(t, err)

	require.Len(t, first.Set.Vectors, 2)
	assert.Equal(t, "AAA", first.Set.Vectors[0].Symbol)
	assert.Equal(t, "BBB", first.Set.Vectors[1].Symbol)
	assert.Contains(t, first.Excluded, "CCC")

	for i := range first.Set.Vectors {
		a, b := first.Set.Vectors[i].Values, second.Set.Vectors[i].Values
		for j := range a {
			if math.IsNaN(a[j]) {
				assert.True(t, math.IsNaN(b[j]))
			} else {
				assert.Equal(t, a[j], b[j])
			}
		}
	}
}

func TestStore_RoundTripKeepsUnknown(t *testing.T) {
	store := NewStore(t.TempDir())
	asOf := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	in := &Processed{
		AsOf: asOf,
		Features: &contracts.FeatureSet{
			Names:   []string{Returns1D, DeliveryPct},
			Vectors: []contracts.FeatureVector{{Symbol: "TCS", Date: asOf, Values: []float64{0.01, contracts.Unknown}, Confidence: 1}},
		},
		Labels: map[string][]contracts.LabelRow{"daily": {{Symbol: "TCS", Date: asOf, Horizon: "daily", Label: 1}}},
	}
	require.NoError(t, store.Save(in))

	out, err := store.Load(asOf)
	require.NoError(t, err)
	assert.True(t, out.AsOf.Equal(asOf))
	require.Len(t, out.Features.Vectors, 1)
	assert.Equal(t, 0.01, out.Features.Vectors[0].Values[0])
	assert.True(t, math.IsNaN(out.Features.Vectors[0].Values[1]))
	assert.Equal(t, 1, out.Labels["daily"][0].Label)
}
