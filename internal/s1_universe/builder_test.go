package s1_universe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
)

func series(symbol string, n int, volume float64, delivery contracts.Field) []contracts.DailyRecord {
	out := make([]contracts.DailyRecord, n)
	d := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = contracts.DailyRecord{
			Symbol:      symbol,
			Date:        d.AddDate(0, 0, i),
			Close:       100,
			Volume:      volume,
			DeliveryPct: delivery,
		}
	}
	return out
}

func TestGate_checkExclusion(t *testing.T) {
	gate := NewGate(pipelineconfig.Default().Universe)

	tests := []struct {
		name     string
		volume   float64
		delivery contracts.Field
		wantPass bool
	}{
		{"liquid with delivery", 250000, contracts.Present(45), true},
		{"exactly at thresholds", 100000, contracts.Present(30), true},
		{"thin volume", 99999, contracts.Present(60), false},
		{"low delivery", 500000, contracts.Present(29.9), false},
		{"unknown delivery fails", 500000, contracts.Absent(), false},
		{"stale delivery counts", 500000, contracts.Stale(40, 0.8, 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := series("TCS", 30, tt.volume, tt.delivery)
			_, reason := gate.Admit(recs, len(recs)-1)
			if tt.wantPass {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestGate_TrailingIgnoresFuture(t *testing.T) {
	gate := NewGate(pipelineconfig.Default().Universe)
	recs := series("TCS", 40, 50000, contracts.Present(50))

	before := gate.Trailing(recs, 25)
	for i := 26; i < len(recs); i++ {
		recs[i].Volume = 1e9
		recs[i].DeliveryPct = contracts.Present(99)
	}
	after := gate.Trailing(recs, 25)

	assert.Equal(t, before, after)
	assert.Equal(t, 20, before.Days)
}

func TestGate_Build(t *testing.T) {
	gate := NewGate(pipelineconfig.Default().Universe)
	h := contracts.History{
		"LIQUID": series("LIQUID", 25, 300000, contracts.Present(55)),
		"THIN":   series("THIN", 25, 1000, contracts.Present(55)),
		"SHORT":  series("SHORT", 10, 300000, contracts.Present(55))[:5],
	}
	date := h["LIQUID"][24].Date

	universe := gate.Build(date, h)
	require.NotNil(t, universe)

	assert.Equal(t, []string{"LIQUID"}, universe.Symbols)
	assert.Equal(t, 1, universe.TotalCount)
	assert.Contains(t, universe.Excluded, "THIN")
	assert.NotContains(t, universe.Excluded, "SHORT", "symbols without a row on the date are not considered")
}
