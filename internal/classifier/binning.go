package classifier

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// missingBin marks a NaN cell in the binned matrix
const missingBin = math.MaxUint8

// binner holds per-feature cut points. A value v falls in bin b where
// cuts[b-1] < v <= cuts[b]; values above the last cut use bin len(cuts).
type binner struct {
	cuts [][]float64
}

// newBinner derives at most maxBins-1 cuts per feature from the training column
func newBinner(X [][]float64, nFeatures, maxBins int) *binner {
	b := &binner{cuts: make([][]float64, nFeatures)}
	col := make([]float64, 0, len(X))
	for f := 0; f < nFeatures; f++ {
		col = col[:0]
		for _, row := range X {
			if v := row[f]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				col = append(col, v)
			}
		}
		b.cuts[f] = cutPoints(col, maxBins)
	}
	return b
}

func cutPoints(col []float64, maxBins int) []float64 {
	if len(col) == 0 {
		return nil
	}
	sort.Float64s(col)

	uniq := make([]float64, 0, maxBins+1)
	for i, v := range col {
		if i == 0 || v != col[i-1] {
			uniq = append(uniq, v)
			if len(uniq) > maxBins {
				break
			}
		}
	}

	if len(uniq) <= maxBins {
		cuts := make([]float64, 0, len(uniq)-1)
		for i := 0; i+1 < len(uniq); i++ {
			cuts = append(cuts, uniq[i]+(uniq[i+1]-uniq[i])/2)
		}
		return cuts
	}

	cuts := make([]float64, 0, maxBins-1)
	last := col[len(col)-1]
	for k := 1; k < maxBins; k++ {
		q := stat.Quantile(float64(k)/float64(maxBins), stat.Empirical, col, nil)
		if q >= last {
			break
		}
		if len(cuts) == 0 || q > cuts[len(cuts)-1] {
			cuts = append(cuts, q)
		}
	}
	return cuts
}

// bin maps one value of feature f
func (b *binner) bin(f int, v float64) uint8 {
	if math.IsNaN(v) {
		return missingBin
	}
	return uint8(sort.SearchFloat64s(b.cuts[f], v))
}

// transform returns the column-major binned matrix
func (b *binner) transform(X [][]float64) [][]uint8 {
	out := make([][]uint8, len(b.cuts))
	for f := range b.cuts {
		col := make([]uint8, len(X))
		for i, row := range X {
			col[i] = b.bin(f, row[f])
		}
		out[f] = col
	}
	return out
}

// bins is the number of non-missing bins of feature f
func (b *binner) bins(f int) int {
	return len(b.cuts[f]) + 1
}
