package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/pkg/logger"
)

var asOf = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func label(sym string, date time.Time, y int, r float64) contracts.LabelRow {
	return contracts.LabelRow{Symbol: sym, Date: date, Horizon: "daily", Label: y, ForwardReturn: r}
}

func TestAnalyzer_Evaluate(t *testing.T) {
	table := &contracts.RankedTable{
		AsOf: asOf,
		ByHorizon: map[string][]contracts.Prediction{
			"daily": {{Symbol: "AAA", Probability: 0.8}, {Symbol: "BBB", Probability: 0.6}, {Symbol: "CCC", Probability: 0.5}},
			"weekly": {{Symbol: "AAA"}},
		},
	}
	rows := map[string][]contracts.LabelRow{
		"daily": {
			label("AAA", asOf, 1, 0.02),
			label("BBB", asOf, 0, -0.01),
			label("DDD", asOf, 0, 0.00),
			label("EEE", asOf, 0, 0.00),
			label("AAA", asOf.AddDate(0, 0, -1), 1, 0.05), // 다른 날짜
		},
	}

	reports := NewAnalyzer(logger.Nop()).Evaluate(table, rows)
	require.Len(t, reports, 2)

	daily := reports[0]
	assert.Equal(t, "daily", daily.Horizon)
	assert.Equal(t, 3, daily.Listed)
	assert.Equal(t, 2, daily.Evaluated)
	assert.Equal(t, 1, daily.Pending)
	assert.Equal(t, 1, daily.Hits)
	assert.InDelta(t, 0.5, daily.HitRate, 1e-12)
	assert.InDelta(t, 0.005, daily.MeanForwardReturn, 1e-12)
	assert.InDelta(t, 0.25, daily.BaseRate, 1e-12)
	assert.InDelta(t, 2.0, daily.Lift, 1e-12)
	assert.False(t, daily.Complete())
	assert.Equal(t, 2, daily.Tail.Samples)
	assert.InDelta(t, 0.01, daily.Tail.VaR, 1e-12)
	assert.Equal(t, 2, daily.Calibration.Samples)
	assert.InDelta(t, (0.2*0.2+0.6*0.6)/2, daily.Calibration.Brier, 1e-12)

	weekly := reports[1]
	assert.Equal(t, "weekly", weekly.Horizon)
	assert.Zero(t, weekly.Evaluated)
	assert.Equal(t, 1, weekly.Pending)
	assert.Zero(t, weekly.HitRate)
	assert.Zero(t, weekly.Lift)
	assert.Zero(t, weekly.Tail.Samples)
}

func TestRunSnapshot_Finish(t *testing.T) {
	started := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)
	run := NewRunSnapshot("run-1", KindTrain, "hash", started)
	run.AsOf = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	run.AddStage("ingest", 1500*time.Millisecond)

	run.Finish(nil, started.Add(3*time.Second))
	assert.True(t, run.Success)
	assert.Empty(t, run.Error)
	assert.Equal(t, 3.0, run.Duration)
	assert.Equal(t, asOf, run.AsOf)
	require.Len(t, run.Stages, 1)
	assert.Equal(t, 1.5, run.Stages[0].Seconds)

	failed := NewRunSnapshot("run-2", KindPredict, "hash", started)
	failed.Finish(errors.New("boom"), started)
	assert.False(t, failed.Success)
	assert.Equal(t, "boom", failed.Error)
	assert.True(t, failed.AsOf.IsZero())
}
