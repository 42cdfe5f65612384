package selection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/pkg/logger"
)

// Scorer is a fitted horizon model
type Scorer interface {
	ID() string
	Align(names []string, values []float64) []float64
	Predict(values []float64) (float64, error)
}

// Ranker scores candidates with each horizon model and orders them
// ⭐ SSOT: 최종 랭킹 로직은 여기서만
type Ranker struct {
	config pipelineconfig.Ranking
	logger *logger.Logger
}

// NewRanker creates a new ranker
func NewRanker(config pipelineconfig.Ranking, log *logger.Logger) *Ranker {
	return &Ranker{
		config: config,
		logger: log.Component("ranker"),
	}
}

// RankInput is one prediction run
type RankInput struct {
	RunID      string
	AsOf       time.Time
	ConfigHash string
	Candidates *contracts.FeatureSet
	Models     map[string]Scorer // horizon → model
	Skipped    map[string]string // horizon → reason
	Anomalies  []contracts.AnomalyFlag
}

// Rank builds the per-horizon and combined Top-N tables.
// Candidates without a usable probability are left out, never scored zero.
func (r *Ranker) Rank(ctx context.Context, in RankInput) (*contracts.RankedTable, error) {
	table := &contracts.RankedTable{
		RunID:      in.RunID,
		AsOf:       contracts.Day(in.AsOf),
		ConfigHash: in.ConfigHash,
		TopN:       r.config.TopN,
		ByHorizon:  make(map[string][]contracts.Prediction),
		Skipped:    make(map[string]string),
		Anomalies:  in.Anomalies,
	}
	for h, reason := range in.Skipped {
		table.Skipped[h] = reason
	}

	horizons := make([]string, 0, len(in.Models))
	for h := range in.Models {
		horizons = append(horizons, h)
	}
	sort.Strings(horizons)

	var pooled []contracts.Prediction
	for _, h := range horizons {
		preds, err := r.Score(ctx, h, in.Models[h], in.Candidates, table.AsOf)
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", h, err)
		}
		pooled = append(pooled, preds...)
		table.ByHorizon[h] = top(preds, r.config.TopN)

		fields := map[string]interface{}{
			"horizon": h,
			"model":   in.Models[h].ID(),
			"scored":  len(preds),
		}
		if len(preds) > 0 {
			fields["top_symbol"] = preds[0].Symbol
			fields["top_probability"] = preds[0].Probability
		}
		r.logger.WithFields(fields).Info("Horizon ranked")
	}

	SortPredictions(pooled)
	table.Combined = top(pooled, r.config.TopN)

	r.logger.WithFields(map[string]interface{}{
		"run_id":   in.RunID,
		"as_of":    contracts.DateKey(table.AsOf),
		"horizons": len(horizons),
		"skipped":  len(table.Skipped),
		"combined": len(table.Combined),
	}).Info("Ranking completed")

	return table, nil
}

// Score predicts every candidate with one model, ordered by rank
func (r *Ranker) Score(ctx context.Context, horizon string, model Scorer, set *contracts.FeatureSet, asOf time.Time) ([]contracts.Prediction, error) {
	tieIdx := set.Index(r.config.TieBreakFeature)
	preds := make([]contracts.Prediction, 0, len(set.Vectors))

	for _, v := range set.Vectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := model.Predict(model.Align(set.Names, v.Values))
		if err != nil {
			return nil, err
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			r.logger.WithFields(map[string]interface{}{
				"horizon": horizon,
				"symbol":  v.Symbol,
			}).Warn("No probability for candidate")
			continue
		}

		pred := contracts.Prediction{
			AsOf:         asOf,
			Symbol:       v.Symbol,
			Horizon:      horizon,
			Probability:  p,
			ModelVersion: model.ID(),
			Snapshot:     snapshot(set.Names, v.Values),
		}
		if tieIdx >= 0 && tieIdx < len(v.Values) && !contracts.IsUnknown(v.Values[tieIdx]) {
			z := v.Values[tieIdx]
			pred.DeliveryZScore = &z
		}
		preds = append(preds, pred)
	}

	SortPredictions(preds)
	for i := range preds {
		preds[i].Rank = i + 1
	}
	return preds, nil
}

// SortPredictions orders by probability desc, then delivery z-score desc
// with unknown last, then symbol and horizon asc
func SortPredictions(ps []contracts.Prediction) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.Probability != b.Probability {
			return a.Probability > b.Probability
		}
		switch {
		case a.DeliveryZScore != nil && b.DeliveryZScore == nil:
			return true
		case a.DeliveryZScore == nil && b.DeliveryZScore != nil:
			return false
		case a.DeliveryZScore != nil && *a.DeliveryZScore != *b.DeliveryZScore:
			return *a.DeliveryZScore > *b.DeliveryZScore
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Horizon < b.Horizon
	})
}

// top copies the first n predictions and renumbers their ranks
func top(ps []contracts.Prediction, n int) []contracts.Prediction {
	if n > len(ps) {
		n = len(ps)
	}
	out := make([]contracts.Prediction, n)
	copy(out, ps[:n])
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// snapshot keeps the known feature values of a row
func snapshot(names []string, values []float64) map[string]float64 {
	out := make(map[string]float64, len(names))
	for i, n := range names {
		if i < len(values) && !contracts.IsUnknown(values[i]) && !math.IsInf(values[i], 0) {
			out[n] = values[i]
		}
	}
	return out
}
