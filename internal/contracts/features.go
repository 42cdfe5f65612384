package contracts

import (
	"math"
	"time"
)

// Unknown is the feature sentinel for "could not be computed".
// Models treat it as missing, never as zero.
var Unknown = math.NaN()

// IsUnknown reports whether v is the Unknown sentinel
func IsUnknown(v float64) bool {
	return math.IsNaN(v)
}

// FeatureVector is the fixed-order feature row for one (symbol, date)
type FeatureVector struct {
	Symbol     string    `msgpack:"sym"`
	Date       time.Time `msgpack:"d"`
	Values     []float64 `msgpack:"v"`
	Confidence float64   `msgpack:"c"` // 1.0 unless stale inputs were used
}

// FeatureSet is a batch of vectors sharing one name ordering
type FeatureSet struct {
	Names   []string        `msgpack:"names"`
	Vectors []FeatureVector `msgpack:"vectors"`
}

// Index returns the position of a feature name, or -1
func (s *FeatureSet) Index(name string) int {
	for i, n := range s.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Value looks up a named feature on one vector
func (s *FeatureSet) Value(v *FeatureVector, name string) float64 {
	i := s.Index(name)
	if i < 0 || i >= len(v.Values) {
		return Unknown
	}
	return v.Values[i]
}

// Horizon is one prediction target: a forward window and a return threshold
type Horizon struct {
	Name      string  `yaml:"name" json:"name" msgpack:"name"`
	Days      int     `yaml:"days" json:"days" msgpack:"days"`
	Threshold float64 `yaml:"threshold" json:"threshold" msgpack:"threshold"`
}

// DefaultHorizons are daily, weekly and monthly targets
func DefaultHorizons() []Horizon {
	return []Horizon{
		{Name: "daily", Days: 5, Threshold: 0.03},
		{Name: "weekly", Days: 20, Threshold: 0.05},
		{Name: "monthly", Days: 60, Threshold: 0.08},
	}
}

// LabelRow is the binary outcome of a (symbol, date) under one horizon
type LabelRow struct {
	Symbol        string    `msgpack:"sym"`
	Date          time.Time `msgpack:"d"`
	Horizon       string    `msgpack:"h"`
	Label         int       `msgpack:"y"`
	ForwardReturn float64   `msgpack:"r"`
}

// AnomalyFlag annotates a (symbol, date) excluded as a likely artifact
type AnomalyFlag struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Rule   string    `json:"rule"`
	Detail string    `json:"detail"`
}

// TrainingTable is the joined, gated, sorted input of one horizon model
type TrainingTable struct {
	Horizon Horizon
	Names   []string
	Rows    []FeatureVector // (Date, Symbol) 오름차순
	Labels  []int
}

// Positives counts label-1 rows
func (t *TrainingTable) Positives() int {
	n := 0
	for _, y := range t.Labels {
		n += y
	}
	return n
}
