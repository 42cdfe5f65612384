package selection

import (
	"context"
	"sort"
	"time"

	"github.com/wonny/smartflow/internal/anomaly"
	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/pkg/logger"
)

// Filter reasons
const (
	FilterWrongDate = "not_as_of_date"
	FilterAnomaly   = "anomaly"
	FilterNoValues  = "no_values"
)

// Screener narrows a feature set to the prediction candidates of one date
// ⭐ SSOT: 예측 후보 선별은 여기서만
type Screener struct {
	logger *logger.Logger
}

// Screening is the candidate set plus what was filtered out
type Screening struct {
	AsOf       time.Time
	Candidates *contracts.FeatureSet
	Filtered   map[string]int    // reason → count
	Excluded   map[string]string // symbol → reason
}

// NewScreener creates a new screener
func NewScreener(log *logger.Logger) *Screener {
	return &Screener{logger: log.Component("screener")}
}

// Screen keeps the as-of vectors that no anomaly rule flagged
func (s *Screener) Screen(ctx context.Context, asOf time.Time, set *contracts.FeatureSet, flags []contracts.AnomalyFlag) (*Screening, error) {
	out := &Screening{
		AsOf:       contracts.Day(asOf),
		Candidates: &contracts.FeatureSet{Names: set.Names},
		Filtered:   make(map[string]int),
		Excluded:   make(map[string]string),
	}
	flagged := anomaly.Keys(flags)

	for _, v := range set.Vectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reason := s.checkConditions(out.AsOf, v, flagged)
		if reason == "" {
			out.Candidates.Vectors = append(out.Candidates.Vectors, v)
			continue
		}
		out.Filtered[reason]++
		if reason != FilterWrongDate {
			out.Excluded[v.Symbol] = reason
		}
	}
	sort.Slice(out.Candidates.Vectors, func(i, j int) bool {
		return out.Candidates.Vectors[i].Symbol < out.Candidates.Vectors[j].Symbol
	})

	s.logger.WithFields(map[string]interface{}{
		"as_of":        contracts.DateKey(out.AsOf),
		"total_input":  len(set.Vectors),
		"passed":       len(out.Candidates.Vectors),
		"filtered_out": len(set.Vectors) - len(out.Candidates.Vectors),
		"filters":      out.Filtered,
	}).Info("Screening completed")

	return out, nil
}

// checkConditions returns an empty string when the vector passes, otherwise the filter name
func (s *Screener) checkConditions(asOf time.Time, v contracts.FeatureVector, flagged map[contracts.RecordKey]bool) string {
	if !contracts.Day(v.Date).Equal(asOf) {
		return FilterWrongDate
	}
	if flagged[contracts.RecordKey{Symbol: v.Symbol, Date: contracts.DateKey(v.Date)}] {
		return FilterAnomaly
	}
	if len(v.Values) == 0 {
		return FilterNoValues
	}
	return ""
}
