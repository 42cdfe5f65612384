package training

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/smartflow/internal/contracts"
)

// Fold is one expanding-window split over table row indices
type Fold struct {
	Train []int
	Test  []int
}

// TimeSeriesFolds splits rows into expanding folds over distinct dates.
// Each test block is one equal slice of dates; the training side ends
// embargo dates before the block so forward-return windows do not overlap it.
func TimeSeriesFolds(rows []contracts.FeatureVector, splits, embargo int) []Fold {
	if splits < 1 {
		return nil
	}

	// 날짜별 행 구간 (rows 는 날짜 오름차순)
	var starts []int
	for i := range rows {
		if i == 0 || !rows[i].Date.Equal(rows[i-1].Date) {
			starts = append(starts, i)
		}
	}
	nDates := len(starts)
	testSize := nDates / (splits + 1)
	if testSize == 0 {
		return nil
	}
	rowAt := func(d int) int {
		if d >= nDates {
			return len(rows)
		}
		return starts[d]
	}

	folds := make([]Fold, 0, splits)
	for k := 0; k < splits; k++ {
		testFrom := nDates - (splits-k)*testSize
		trainTo := testFrom - embargo
		if trainTo < 1 {
			continue
		}
		f := Fold{}
		for i := 0; i < rowAt(trainTo); i++ {
			f.Train = append(f.Train, i)
		}
		for i := rowAt(testFrom); i < rowAt(testFrom+testSize); i++ {
			f.Test = append(f.Test, i)
		}
		folds = append(folds, f)
	}
	return folds
}

// AUC is the area under the ROC curve. It is Unknown when only one class is present.
func AUC(scores []float64, labels []int) float64 {
	if len(scores) != len(labels) || len(scores) == 0 {
		return contracts.Unknown
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	y := make([]float64, len(idx))
	classes := make([]bool, len(idx))
	var pos int
	for i, j := range idx {
		y[i] = scores[j]
		classes[i] = labels[j] == 1
		pos += labels[j]
	}
	if pos == 0 || pos == len(labels) {
		return contracts.Unknown
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// FoldScore is the held-out result of one fold.
// AUC is meaningful only when Scored; single-class folds are not scored.
type FoldScore struct {
	Train  int     `json:"train" msgpack:"train"`
	Test   int     `json:"test" msgpack:"test"`
	AUC    float64 `json:"auc" msgpack:"auc"`
	Scored bool    `json:"scored" msgpack:"scored"`
}

// CVReport summarizes the folds of one horizon
type CVReport struct {
	Folds   []FoldScore `json:"folds" msgpack:"folds"`
	Scored  int         `json:"scored" msgpack:"scored"`
	MeanAUC float64     `json:"mean_auc" msgpack:"mean_auc"`
	StdAUC  float64     `json:"std_auc" msgpack:"std_auc"`
}

// crossValidate fits a fresh normalization and model per fold
func (t *Trainer) crossValidate(ctx context.Context, table *contracts.TrainingTable) (CVReport, error) {
	var report CVReport
	folds := TimeSeriesFolds(table.Rows, t.config.CVSplits, table.Horizon.Days)

	var aucs []float64
	for _, f := range folds {
		train := pick(table.Rows, f.Train)
		norm := FitNormalization(train, len(table.Names))

		pred, err := t.classifier.Fit(ctx, norm.Matrix(train), pickInts(table.Labels, f.Train))
		if err != nil {
			return report, err
		}

		test := pick(table.Rows, f.Test)
		scores := make([]float64, len(test))
		for i, r := range test {
			scores[i] = pred.PredictProba(norm.Apply(r.Values))
		}
		fs := FoldScore{Train: len(f.Train), Test: len(f.Test)}
		if auc := AUC(scores, pickInts(table.Labels, f.Test)); !math.IsNaN(auc) {
			fs.AUC, fs.Scored = auc, true
			aucs = append(aucs, auc)
		}
		report.Folds = append(report.Folds, fs)
	}

	report.Scored = len(aucs)
	switch len(aucs) {
	case 0:
	case 1:
		report.MeanAUC, report.StdAUC = aucs[0], 0
	default:
		report.MeanAUC, report.StdAUC = stat.MeanStdDev(aucs, nil)
	}
	return report, nil
}

func pick(rows []contracts.FeatureVector, idx []int) []contracts.FeatureVector {
	out := make([]contracts.FeatureVector, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func pickInts(xs []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}
