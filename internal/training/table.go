package training

import (
	"github.com/wonny/smartflow/internal/anomaly"
	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/labels"
	"github.com/wonny/smartflow/internal/s2_features"
)

// BuildTable joins feature vectors with one horizon's labels.
// Flagged rows and rows without a label are dropped; the result is in
// (date, symbol) order.
func BuildTable(h contracts.Horizon, set *contracts.FeatureSet, rows []contracts.LabelRow, flags []contracts.AnomalyFlag) *contracts.TrainingTable {
	index := labels.Index(rows)
	flagged := anomaly.Keys(flags)

	table := &contracts.TrainingTable{
		Horizon: h,
		Names:   set.Names,
		Rows:    make([]contracts.FeatureVector, 0, len(set.Vectors)),
		Labels:  make([]int, 0, len(set.Vectors)),
	}

	vectors := append([]contracts.FeatureVector(nil), set.Vectors...)
	s2_features.SortVectors(vectors)

	for _, v := range vectors {
		key := contracts.RecordKey{Symbol: v.Symbol, Date: contracts.DateKey(v.Date)}
		if flagged[key] {
			continue
		}
		row, ok := index[key]
		if !ok {
			continue
		}
		table.Rows = append(table.Rows, v)
		table.Labels = append(table.Labels, row.Label)
	}
	return table
}
