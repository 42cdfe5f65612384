package contracts

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestField_States(t *testing.T) {
	tests := []struct {
		name      string
		field     Field
		wantKnown bool
		wantValue float64
	}{
		{"present", Present(42.5), true, 42.5},
		{"present zero is known", Present(0), true, 0},
		{"stale", Stale(38, 0.64, 2), true, 38},
		{"absent", Absent(), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := tt.field.Get()
			assert.Equal(t, tt.wantKnown, ok)
			assert.Equal(t, tt.wantValue, v)
		})
	}

	assert.NotEqual(t, Present(0), Absent(), "absent must not collapse to zero")
}

func TestQualityReport_Admits(t *testing.T) {
	report := &QualityReport{
		Date:         time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		SoftExcluded: map[string][]string{"XYZ": {"price_continuity"}},
	}

	assert.True(t, report.Admits("RELIANCE"))
	assert.False(t, report.Admits("XYZ"))

	report.HardFailed = true
	assert.False(t, report.Admits("RELIANCE"), "hard failure excludes every symbol")

	var missing *QualityReport
	assert.False(t, missing.Admits("RELIANCE"))
}

func TestErrorKinds(t *testing.T) {
	ingest := &IngestionError{Date: time.Now(), File: "bhav.csv", Skipped: 10, Expected: 100}
	assert.True(t, errors.Is(ingest, ErrIngestion))

	skip := &TrainingSkip{Horizon: "monthly", Rows: 12, Min: 200}
	assert.True(t, errors.Is(skip, ErrTrainingDataInsufficient))
	assert.Contains(t, skip.Error(), "monthly")

	assert.True(t, errors.Is(Fatal("no bhavcopy in %s", "raw/bhav"), ErrFatalRun))
}

func TestFeatureSet_Value(t *testing.T) {
	set := &FeatureSet{Names: []string{"a", "b"}}
	v := &FeatureVector{Values: []float64{1, Unknown}}

	assert.Equal(t, 1.0, set.Value(v, "a"))
	assert.True(t, IsUnknown(set.Value(v, "b")))
	assert.True(t, IsUnknown(set.Value(v, "missing")))
}

func TestQualityReport_Err(t *testing.T) {
	report := &QualityReport{
		Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Checks: []CheckResult{
			{Name: "date_monotonicity", Status: StatusPass},
			{Name: "duplicate_records", Status: StatusHardFail},
		},
	}
	assert.NoError(t, report.Err())

	report.HardFailed = true
	err := report.Err()
	assert.True(t, errors.Is(err, ErrQualityHardFailure))
	assert.Contains(t, err.Error(), "duplicate_records")
}

func TestWeekdays(t *testing.T) {
	// 2025-01-03 금요일 ~ 2025-01-07 화요일
	days := Weekdays(time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC))
	keys := make([]string, 0, len(days))
	for _, d := range days {
		keys = append(keys, DateKey(d))
	}
	assert.Equal(t, []string{"2025-01-03", "2025-01-06", "2025-01-07"}, keys)
}

func TestMissingWeekdays(t *testing.T) {
	// 2025-01-03(금), 2025-01-07(화): 01-06(월) 누락, 주말 제외
	dates := []time.Time{
		time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	missing := MissingWeekdays(dates)
	assert.Equal(t, []time.Time{time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)}, missing)
	assert.Nil(t, MissingWeekdays(nil))
}

func TestHistory_Dates(t *testing.T) {
	d1 := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	h := History{
		"AAA": {{Symbol: "AAA", Date: d1}, {Symbol: "AAA", Date: d2}},
		"BBB": {{Symbol: "BBB", Date: d2}},
	}
	assert.Equal(t, []time.Time{d1, d2}, h.Dates())
}

func TestBaseline_KeepsWindowAndSkipsBadCloses(t *testing.T) {
	d := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	b := NewBaseline(2)
	for i, px := range []float64{100, 101, 0, 102} {
		b.Observe([]DailyRecord{{Symbol: "AAA", Date: d.AddDate(0, 0, i), Close: px, Volume: 10}})
	}

	bars := b.Bars("AAA")
	assert.Len(t, bars, 2)
	assert.Equal(t, 101.0, bars[0].Close)
	last, ok := b.Last("AAA")
	assert.True(t, ok)
	assert.Equal(t, 102.0, last.Close)

	_, ok = b.Last("BBB")
	assert.False(t, ok)
	var none *Baseline
	assert.Nil(t, none.Bars("AAA"))
}
