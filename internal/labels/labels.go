package labels

import (
	"sort"

	"github.com/wonny/smartflow/internal/contracts"
)

// epsilon absorbs binary rounding so that a decimal return equal to the
// threshold is labeled positive
const epsilon = 1e-12

// Label returns 1 when the forward return reaches the threshold
func Label(forwardReturn, threshold float64) int {
	if forwardReturn >= threshold-epsilon {
		return 1
	}
	return 0
}

// Build labels every record whose close h sessions later on the history's
// trading calendar is known. A row is dropped when that session is past the
// end of the calendar or the symbol has no bar on it (soft-excluded or
// suspended); it never slides to a later bar.
// ⭐ SSOT: 라벨은 여기서만 생성 (피처와 분리)
func Build(history contracts.History, h contracts.Horizon) []contracts.LabelRow {
	calendar := history.Dates()
	index := make(map[string]int, len(calendar))
	for i, d := range calendar {
		index[contracts.DateKey(d)] = i
	}

	rows := make([]contracts.LabelRow, 0)
	for _, sym := range history.Symbols() {
		recs := history[sym]
		closeOn := make(map[string]float64, len(recs))
		for _, r := range recs {
			closeOn[contracts.DateKey(r.Date)] = r.Close
		}

		for _, rec := range recs {
			i := index[contracts.DateKey(rec.Date)]
			if i+h.Days >= len(calendar) || rec.Close <= 0 {
				continue
			}
			future, ok := closeOn[contracts.DateKey(calendar[i+h.Days])]
			if !ok {
				continue
			}
			r := future/rec.Close - 1
			rows = append(rows, contracts.LabelRow{
				Symbol:        sym,
				Date:          rec.Date,
				Horizon:       h.Name,
				Label:         Label(r, h.Threshold),
				ForwardReturn: r,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].Symbol < rows[j].Symbol
	})
	return rows
}

// BuildAll labels every configured horizon
func BuildAll(history contracts.History, horizons []contracts.Horizon) map[string][]contracts.LabelRow {
	out := make(map[string][]contracts.LabelRow, len(horizons))
	for _, h := range horizons {
		out[h.Name] = Build(history, h)
	}
	return out
}

// Index keys label rows by (symbol, date)
func Index(rows []contracts.LabelRow) map[contracts.RecordKey]contracts.LabelRow {
	out := make(map[contracts.RecordKey]contracts.LabelRow, len(rows))
	for _, r := range rows {
		out[contracts.RecordKey{Symbol: r.Symbol, Date: contracts.DateKey(r.Date)}] = r
	}
	return out
}
