package s1_universe

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
)

// Universe is the liquidity-eligible symbol set of one date
type Universe struct {
	Date       time.Time         `json:"date"`
	Symbols    []string          `json:"symbols"`
	Excluded   map[string]string `json:"excluded"` // symbol → reason
	TotalCount int               `json:"total_count"`
}

// Liquidity is the trailing activity of a symbol at a date
type Liquidity struct {
	AvgVolume      float64 `json:"avg_volume"`
	AvgDeliveryPct float64 `json:"avg_delivery_pct"` // NaN 이면 모름
	Days           int     `json:"days"`
}

// Gate decides whether a (symbol, date) is liquid enough to model
// ⭐ SSOT: S1 유동성 게이트
type Gate struct {
	config pipelineconfig.Universe
}

// NewGate creates a new liquidity gate
func NewGate(config pipelineconfig.Universe) *Gate {
	return &Gate{config: config}
}

// Trailing measures recs[end-window+1 .. end]; nothing after end is read
func (g *Gate) Trailing(recs []contracts.DailyRecord, end int) Liquidity {
	start := end - g.config.Window + 1
	if start < 0 {
		start = 0
	}

	var liq Liquidity
	volSum, pctSum, pctN := 0.0, 0.0, 0
	for i := start; i <= end; i++ {
		volSum += recs[i].Volume
		if v, ok := recs[i].DeliveryPct.Get(); ok {
			pctSum += v
			pctN++
		}
	}
	liq.Days = end - start + 1
	liq.AvgVolume = volSum / float64(liq.Days)
	liq.AvgDeliveryPct = contracts.Unknown
	if pctN > 0 {
		liq.AvgDeliveryPct = pctSum / float64(pctN)
	}
	return liq
}

// Admit returns "" when recs[end] passes, otherwise the exclusion reason
func (g *Gate) Admit(recs []contracts.DailyRecord, end int) (Liquidity, string) {
	liq := g.Trailing(recs, end)
	return liq, g.checkExclusion(liq)
}

// checkExclusion checks if a symbol should be excluded and returns the reason
func (g *Gate) checkExclusion(liq Liquidity) string {
	// 1. 거래량 미달
	if liq.AvgVolume < g.config.MinLiquidity {
		return fmt.Sprintf("avg volume %.0f < %.0f", liq.AvgVolume, g.config.MinLiquidity)
	}

	// 2. 인도율 모름
	if math.IsNaN(liq.AvgDeliveryPct) {
		return "delivery unknown"
	}

	// 3. 인도율 미달
	if liq.AvgDeliveryPct < g.config.MinDeliveryPct {
		return fmt.Sprintf("avg delivery %.1f%% < %.1f%%", liq.AvgDeliveryPct, g.config.MinDeliveryPct)
	}

	return "" // 통과
}

// Build constructs the eligible universe of a date from history
// ⭐ SSOT: S1 → S2 유니버스 생성
func (g *Gate) Build(date time.Time, history contracts.History) *Universe {
	universe := &Universe{
		Date:     date,
		Symbols:  make([]string, 0),
		Excluded: make(map[string]string),
	}

	for _, sym := range history.Symbols() {
		recs := history[sym]
		end := indexOf(recs, date)
		if end < 0 {
			continue
		}
		if _, reason := g.Admit(recs, end); reason != "" {
			universe.Excluded[sym] = reason
			continue
		}
		universe.Symbols = append(universe.Symbols, sym)
	}

	sort.Strings(universe.Symbols)
	universe.TotalCount = len(universe.Symbols)
	return universe
}

// indexOf finds the record of date in an ascending slice
func indexOf(recs []contracts.DailyRecord, date time.Time) int {
	i := sort.Search(len(recs), func(i int) bool { return !recs[i].Date.Before(date) })
	if i < len(recs) && recs[i].Date.Equal(date) {
		return i
	}
	return -1
}
