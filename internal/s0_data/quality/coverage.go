package quality

import (
	"sort"
	"time"

	"github.com/wonny/smartflow/internal/contracts"
)

// Coverage compares each symbol's accepted days with the weekday calendar
// spanned by the accepted dates. Exchange holidays count as missing weekdays.
func Coverage(history contracts.History, accepted []time.Time) *contracts.CoverageSummary {
	summary := &contracts.CoverageSummary{
		SymbolCoverage: make(map[string]float64),
	}
	if len(accepted) == 0 {
		return summary
	}

	dates := append([]time.Time(nil), accepted...)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	summary.From, summary.To = dates[0], dates[len(dates)-1]
	summary.MissingDates = contracts.MissingWeekdays(dates)

	calendar := contracts.Weekdays(summary.From, summary.To)
	summary.ExpectedDays = len(calendar)
	if summary.ExpectedDays == 0 {
		return summary
	}

	total := 0.0
	for _, sym := range history.Symbols() {
		cov := float64(len(history[sym])) / float64(summary.ExpectedDays)
		summary.SymbolCoverage[sym] = cov
		total += cov
		if cov >= 1 {
			summary.FullCoverage++
		}
		if cov < 0.9 {
			summary.BelowNinetyPct++
		}
	}
	if n := len(summary.SymbolCoverage); n > 0 {
		summary.AverageCoverage = total / float64(n)
	}
	return summary
}
