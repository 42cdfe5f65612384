package contracts

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CheckClass separates whole-date checks from per-symbol checks
type CheckClass string

const (
	CheckStructural  CheckClass = "structural"
	CheckStatistical CheckClass = "statistical"
)

// CheckStatus is the outcome of one check
type CheckStatus string

const (
	StatusPass     CheckStatus = "pass"
	StatusSoftFail CheckStatus = "soft_fail"
	StatusHardFail CheckStatus = "hard_fail"
)

// CheckResult is one of the fixed quality checks for a date
type CheckResult struct {
	Name    string      `json:"name"`
	Class   CheckClass  `json:"class"`
	Status  CheckStatus `json:"status"`
	Score   float64     `json:"score"`             // 임계값 대비 최대 편차
	Detail  string      `json:"detail,omitempty"`  // 사람이 읽는 설명
	Symbols []string    `json:"symbols,omitempty"` // soft fail 대상 종목 (정렬됨)
}

// QualityReport is the gate verdict for a single trading date
// ⭐ SSOT: S0 품질 게이트 결과
type QualityReport struct {
	Date              time.Time           `json:"date"`
	InputHash         string              `json:"input_hash"`
	Checks            []CheckResult       `json:"checks"`
	HardFailed        bool                `json:"hard_failed"`
	ReducedConfidence bool                `json:"reduced_confidence"`
	SoftExcluded      map[string][]string `json:"soft_excluded,omitempty"` // symbol → failed checks
	Symbols           int                 `json:"symbols"`
}

// Admits reports whether a (symbol, date) row may flow downstream
func (q *QualityReport) Admits(symbol string) bool {
	if q == nil || q.HardFailed {
		return false
	}
	_, excluded := q.SoftExcluded[symbol]
	return !excluded
}

// Err returns ErrQualityHardFailure for an excluded date and nil otherwise
func (q *QualityReport) Err() error {
	if q == nil || !q.HardFailed {
		return nil
	}
	hard := make([]string, 0)
	for _, c := range q.Checks {
		if c.Status == StatusHardFail {
			hard = append(hard, c.Name)
		}
	}
	return fmt.Errorf("%w: %s [%s]", ErrQualityHardFailure, DateKey(q.Date), strings.Join(hard, ","))
}

// Check returns the named check result
func (q *QualityReport) Check(name string) (CheckResult, bool) {
	for _, c := range q.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// FailedChecks lists the names of every non-passing check
func (q *QualityReport) FailedChecks() []string {
	names := make([]string, 0)
	for _, c := range q.Checks {
		if c.Status != StatusPass {
			names = append(names, c.Name)
		}
	}
	return names
}

// ExcludedSymbols returns soft-excluded symbols in sorted order
func (q *QualityReport) ExcludedSymbols() []string {
	out := make([]string, 0, len(q.SoftExcluded))
	for s := range q.SoftExcluded {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CoverageSummary reports per-symbol history coverage across a date range
type CoverageSummary struct {
	From            time.Time          `json:"from"`
	To              time.Time          `json:"to"`
	ExpectedDays    int                `json:"expected_days"`
	MissingDates    []time.Time        `json:"missing_dates"`
	SymbolCoverage  map[string]float64 `json:"symbol_coverage"`
	AverageCoverage float64            `json:"average_coverage"`
	FullCoverage    int                `json:"full_coverage"`
	BelowNinetyPct  int                `json:"below_ninety_pct"`
}
