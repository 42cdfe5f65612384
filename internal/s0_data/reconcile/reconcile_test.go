package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/pkg/logger"
)

// 2025-01-06 월요일부터 평일만
func tradingDays(n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	for len(out) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

func newTestReconciler() *Reconciler {
	return NewReconciler(pipelineconfig.Default().Reconcile, 2, logger.Nop())
}

func TestReconcile_ForwardFillWithDecay(t *testing.T) {
	days := tradingDays(8)
	recs := make([]contracts.DailyRecord, len(days))
	for i, d := range days {
		recs[i] = contracts.DailyRecord{Symbol: "TCS", Date: d, Close: 100, Volume: 1000}
	}
	recs[0].DeliveryPct = contracts.Present(40)
	recs[0].FIINet = contracts.Present(-500)
	recs[0].BulkBlock = true

	h := contracts.History{"TCS": recs}
	out, report, err := newTestReconciler().Reconcile(context.Background(), h)
	require.NoError(t, err)

	got := out["TCS"]
	require.Len(t, got, 8)

	assert.Equal(t, contracts.FieldPresent, got[0].DeliveryPct.State)
	for age := 1; age <= 5; age++ {
		f := got[age].DeliveryPct
		assert.Equal(t, contracts.FieldStale, f.State, "age %d", age)
		assert.Equal(t, 40.0, f.Value)
		assert.Equal(t, age, f.AgeDays)
		assert.InDelta(t, pow(0.8, age), f.Weight, 1e-12)
	}
	assert.False(t, got[6].DeliveryPct.Known(), "beyond lookback stays absent")
	assert.False(t, got[7].DeliveryPct.Known())

	assert.Equal(t, 5, report.Filled["delivery_pct"])
	assert.Equal(t, 2, report.Unfilled["delivery_pct"])

	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].BulkBlock, "bulk/block is never carried forward")
	}

	// 입력은 변경되지 않음
	assert.False(t, h["TCS"][1].DeliveryPct.Known())
}

func TestReconcile_PresentResetsAge(t *testing.T) {
	days := tradingDays(4)
	recs := make([]contracts.DailyRecord, len(days))
	for i, d := range days {
		recs[i] = contracts.DailyRecord{Symbol: "INFY", Date: d}
	}
	recs[0].DeliveryPct = contracts.Present(30)
	recs[2].DeliveryPct = contracts.Present(55)

	out, _, err := newTestReconciler().Reconcile(context.Background(), contracts.History{"INFY": recs})
	require.NoError(t, err)

	got := out["INFY"]
	assert.Equal(t, contracts.Stale(30, 0.8, 1), got[1].DeliveryPct)
	assert.Equal(t, contracts.Stale(55, 0.8, 1), got[3].DeliveryPct)
}

func TestReconcile_AgeCountsCalendarGaps(t *testing.T) {
	days := tradingDays(4)
	// INFY 는 중간 두 날짜가 없음 (soft exclusion 등)
	h := contracts.History{
		"TCS": {
			{Symbol: "TCS", Date: days[0]}, {Symbol: "TCS", Date: days[1]},
			{Symbol: "TCS", Date: days[2]}, {Symbol: "TCS", Date: days[3]},
		},
		"INFY": {
			{Symbol: "INFY", Date: days[0], DeliveryPct: contracts.Present(60)},
			{Symbol: "INFY", Date: days[3]},
		},
	}

	out, report, err := newTestReconciler().Reconcile(context.Background(), h)
	require.NoError(t, err)

	f := out["INFY"][1].DeliveryPct
	assert.Equal(t, contracts.FieldStale, f.State)
	assert.Equal(t, 3, f.AgeDays)
	assert.Equal(t, 2, report.Symbols)
	assert.Equal(t, 6, report.Records)
}

func TestReconcile_MissingWeekdaysReported(t *testing.T) {
	days := tradingDays(5) // 월~금
	h := contracts.History{
		"TCS": {
			{Symbol: "TCS", Date: days[0]},
			{Symbol: "TCS", Date: days[1]},
			{Symbol: "TCS", Date: days[4]},
		},
	}

	out, report, err := newTestReconciler().Reconcile(context.Background(), h)
	require.NoError(t, err)

	require.Len(t, report.MissingDates, 2)
	assert.Equal(t, days[2], report.MissingDates[0])
	assert.Equal(t, days[3], report.MissingDates[1])
	assert.Len(t, out["TCS"], 3, "missing days are never filled")
}

func pow(x float64, n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= x
	}
	return out
}
