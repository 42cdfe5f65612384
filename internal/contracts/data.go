package contracts

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the canonical date key used in file names, logs and JSON
const DateLayout = "2006-01-02"

// FieldState distinguishes observed, carried-forward and missing values
type FieldState uint8

const (
	FieldAbsent FieldState = iota
	FieldPresent
	FieldStale
)

func (s FieldState) String() string {
	switch s {
	case FieldPresent:
		return "present"
	case FieldStale:
		return "stale"
	default:
		return "absent"
	}
}

// Field is a value that may be missing.
// ⭐ SSOT: "모름"과 0 은 절대 같은 값이 아님
type Field struct {
	State   FieldState `json:"state" msgpack:"s"`
	Value   float64    `json:"value,omitempty" msgpack:"v"`
	Weight  float64    `json:"weight,omitempty" msgpack:"w"` // 1.0 for present, decay^age for stale
	AgeDays int        `json:"age_days,omitempty" msgpack:"a"`
}

// Present wraps an observed value
func Present(v float64) Field {
	return Field{State: FieldPresent, Value: v, Weight: 1}
}

// Stale wraps a forward-filled value with its decayed weight
func Stale(v, weight float64, ageDays int) Field {
	return Field{State: FieldStale, Value: v, Weight: weight, AgeDays: ageDays}
}

// Absent is the missing value
func Absent() Field {
	return Field{}
}

// Known reports whether the field carries a value
func (f Field) Known() bool {
	return f.State != FieldAbsent
}

// Get returns the value and whether it is known
func (f Field) Get() (float64, bool) {
	return f.Value, f.Known()
}

func (f Field) String() string {
	switch f.State {
	case FieldPresent:
		return fmt.Sprintf("%g", f.Value)
	case FieldStale:
		return fmt.Sprintf("%g(stale %dd w=%.2f)", f.Value, f.AgeDays, f.Weight)
	default:
		return "absent"
	}
}

// ParticipantOI holds market-wide open interest by participant category
type ParticipantOI struct {
	FIILong     Field `json:"fii_long" msgpack:"fl"`
	FIIShort    Field `json:"fii_short" msgpack:"fs"`
	DIILong     Field `json:"dii_long" msgpack:"dl"`
	DIIShort    Field `json:"dii_short" msgpack:"ds"`
	ClientLong  Field `json:"client_long" msgpack:"cl"`
	ClientShort Field `json:"client_short" msgpack:"cs"`
	ProLong     Field `json:"pro_long" msgpack:"pl"`
	ProShort    Field `json:"pro_short" msgpack:"ps"`
}

// Fields returns pointers to every category in a fixed order
func (o *ParticipantOI) Fields() []*Field {
	return []*Field{
		&o.FIILong, &o.FIIShort,
		&o.DIILong, &o.DIIShort,
		&o.ClientLong, &o.ClientShort,
		&o.ProLong, &o.ProShort,
	}
}

// DailyRecord is the unified per-(symbol, date) fact
// ⭐ SSOT: S0 → 이후 모든 단계의 입력 단위
type DailyRecord struct {
	Symbol string    `json:"symbol" msgpack:"sym"`
	Date   time.Time `json:"date" msgpack:"d"`

	Open   float64 `json:"open" msgpack:"o"`
	High   float64 `json:"high" msgpack:"h"`
	Low    float64 `json:"low" msgpack:"l"`
	Close  float64 `json:"close" msgpack:"c"`
	Volume float64 `json:"volume" msgpack:"vol"`
	Trades float64 `json:"trades,omitempty" msgpack:"tr"`

	DeliveryQty Field `json:"delivery_qty" msgpack:"dq"`
	DeliveryPct Field `json:"delivery_pct" msgpack:"dp"`

	// FII/DII 순매수는 시장 전체 값 (종목별 아님)
	FIINet Field `json:"fii_net" msgpack:"fii"`
	DIINet Field `json:"dii_net" msgpack:"dii"`

	OI ParticipantOI `json:"participant_oi" msgpack:"oi"`

	// 부재 시 false, 절대 true 로 보정하지 않음
	BulkBlock    bool    `json:"bulk_block" msgpack:"bb"`
	BulkBlockQty float64 `json:"bulk_block_qty,omitempty" msgpack:"bbq"`
}

// Key returns the (symbol, date) identity
func (r *DailyRecord) Key() RecordKey {
	return RecordKey{Symbol: r.Symbol, Date: DateKey(r.Date)}
}

// RecordKey identifies a DailyRecord
type RecordKey struct {
	Symbol string
	Date   string
}

// DateKey formats a date in the canonical layout
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses the canonical layout in UTC
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Day truncates a time to a UTC calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Weekdays lists Monday-Friday dates in [from, to]
func Weekdays(from, to time.Time) []time.Time {
	out := make([]time.Time, 0)
	for d := Day(from); !d.After(Day(to)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
	}
	return out
}

// MissingWeekdays returns the weekdays between the first and last date that
// have no data. Exchange holidays are reported too.
func MissingWeekdays(dates []time.Time) []time.Time {
	if len(dates) == 0 {
		return nil
	}
	have := make(map[string]bool, len(dates))
	first, last := dates[0], dates[0]
	for _, d := range dates {
		have[DateKey(d)] = true
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}

	missing := make([]time.Time, 0)
	for _, d := range Weekdays(first, last) {
		if !have[DateKey(d)] {
			missing = append(missing, d)
		}
	}
	return missing
}

// Source names of the five raw disclosures
const (
	SourceBhav        = "bhav"
	SourceDelivery    = "delivery"
	SourceFIIDII      = "fii_dii"
	SourceParticipant = "participant_oi"
	SourceBulkBlock   = "bulk_block"
)

// Sources lists the raw disclosures in a fixed order
var Sources = []string{SourceBhav, SourceDelivery, SourceFIIDII, SourceParticipant, SourceBulkBlock}

// DateBatch is everything ingested for one trading date
type DateBatch struct {
	Date       time.Time       `json:"date"`
	Records    []DailyRecord   `json:"records"`    // symbol 오름차순, 중복 제거됨
	Duplicates []string        `json:"duplicates"` // 중복 (symbol, date) 행의 symbol
	Present    map[string]bool `json:"present"`    // source → 파일 존재 여부
	Skipped    map[string]int  `json:"skipped"`    // source → 스킵된 malformed 행 수
	Files      []string        `json:"files"`
}

// History maps symbol to its accepted records in ascending date order
type History map[string][]DailyRecord

// Append adds records of one date; callers append dates in ascending order
func (h History) Append(records []DailyRecord) {
	for _, r := range records {
		h[r.Symbol] = append(h[r.Symbol], r)
	}
}

// Dates is the trading calendar of the history: the ascending union of its dates
func (h History) Dates() []time.Time {
	seen := make(map[string]time.Time)
	for _, recs := range h {
		for _, r := range recs {
			seen[DateKey(r.Date)] = r.Date
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Symbols returns the history's symbols in sorted order
func (h History) Symbols() []string {
	out := make([]string, 0, len(h))
	for s := range h {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Bar is the close/volume of one ingested row, admitted or not
type Bar struct {
	Date   time.Time `json:"date" msgpack:"date"`
	Close  float64   `json:"close" msgpack:"close"`
	Volume float64   `json:"volume" msgpack:"volume"`
}

// Baseline keeps each symbol's latest ingested bars on dates that were not
// hard-failed. Statistical quality checks measure a date against it, so a
// soft-excluded row still becomes the reference for the next date.
type Baseline struct {
	window int
	bars   map[string][]Bar
}

// NewBaseline keeps up to window bars per symbol
func NewBaseline(window int) *Baseline {
	if window < 1 {
		window = 1
	}
	return &Baseline{window: window, bars: make(map[string][]Bar)}
}

// Observe appends one date's rows. Rows without a positive close carry no
// usable reference and are skipped.
func (b *Baseline) Observe(records []DailyRecord) {
	for _, r := range records {
		if r.Close <= 0 {
			continue
		}
		bars := append(b.bars[r.Symbol], Bar{Date: r.Date, Close: r.Close, Volume: r.Volume})
		if n := len(bars); n > b.window {
			bars = append(bars[:0:0], bars[n-b.window:]...)
		}
		b.bars[r.Symbol] = bars
	}
}

// Bars returns the symbol's bars in ascending date order
func (b *Baseline) Bars(symbol string) []Bar {
	if b == nil {
		return nil
	}
	return b.bars[symbol]
}

// Last returns the symbol's most recent bar
func (b *Baseline) Last(symbol string) (Bar, bool) {
	bars := b.Bars(symbol)
	if len(bars) == 0 {
		return Bar{}, false
	}
	return bars[len(bars)-1], true
}
