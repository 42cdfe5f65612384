package training

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/smartflow/internal/contracts"
)

// Normalization is the per-feature standardization fit on one horizon's table
type Normalization struct {
	Mean []float64 `msgpack:"mean"`
	Std  []float64 `msgpack:"std"`
}

// FitNormalization computes mean and std-dev over the known cells of each column.
// Columns with no spread keep a unit scale.
func FitNormalization(rows []contracts.FeatureVector, nFeatures int) Normalization {
	n := Normalization{
		Mean: make([]float64, nFeatures),
		Std:  make([]float64, nFeatures),
	}
	col := make([]float64, 0, len(rows))
	for f := 0; f < nFeatures; f++ {
		col = col[:0]
		for _, r := range rows {
			if v := r.Values[f]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				col = append(col, v)
			}
		}
		n.Std[f] = 1
		switch len(col) {
		case 0:
		case 1:
			n.Mean[f] = col[0]
		default:
			mean, std := stat.MeanStdDev(col, nil)
			n.Mean[f] = mean
			if std > 0 {
				n.Std[f] = std
			}
		}
	}
	return n
}

// Apply returns a standardized copy of x; Unknown cells stay Unknown
func (n Normalization) Apply(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if i >= len(n.Mean) || math.IsNaN(v) {
			out[i] = v
			continue
		}
		out[i] = (v - n.Mean[i]) / n.Std[i]
	}
	return out
}

// Matrix standardizes every row of a table
func (n Normalization) Matrix(rows []contracts.FeatureVector) [][]float64 {
	X := make([][]float64, len(rows))
	for i, r := range rows {
		X[i] = n.Apply(r.Values)
	}
	return X
}
