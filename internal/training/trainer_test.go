package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/smartflow/internal/classifier"
	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/pkg/logger"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// syntheticSet has nDates × nSymbols rows; label is 1 when feature a > 0
func syntheticSet(nDates, nSymbols int) (*contracts.FeatureSet, []contracts.LabelRow) {
	set := &contracts.FeatureSet{Names: []string{"a", "b"}}
	var rows []contracts.LabelRow
	for d := 0; d < nDates; d++ {
		date := base.AddDate(0, 0, d)
		for s := 0; s < nSymbols; s++ {
			sym := fmt.Sprintf("S%02d", s)
			a := math.Sin(float64(d*nSymbols+s) * 0.7)
			b := contracts.Unknown
			if s%3 == 0 {
				b = float64(s)
			}
			set.Vectors = append(set.Vectors, contracts.FeatureVector{
				Symbol: sym, Date: date, Values: []float64{a, b}, Confidence: 1,
			})
			y := 0
			if a > 0 {
				y = 1
			}
			rows = append(rows, contracts.LabelRow{Symbol: sym, Date: date, Horizon: "daily", Label: y})
		}
	}
	return set, rows
}

func testTrainer(t *testing.T, minRows int) (*Trainer, *ModelStore) {
	cfg := pipelineconfig.Default().Training
	cfg.MinRows = minRows
	cfg.CVSplits = 3
	p := classifier.ParamsFrom(cfg.Classifier)
	p.NEstimators = 20
	p.LearningRate = 0.3

	store := NewModelStore(t.TempDir())
	return NewTrainer(cfg, classifier.New(p), store, logger.Nop()), store
}

func TestBuildTable(t *testing.T) {
	set, rows := syntheticSet(3, 2)
	// 역순 입력도 (date, symbol) 정렬
	for i, j := 0, len(set.Vectors)-1; i < j; i, j = i+1, j-1 {
		set.Vectors[i], set.Vectors[j] = set.Vectors[j], set.Vectors[i]
	}
	rows = rows[:5] // 마지막 행은 라벨 없음
	flags := []contracts.AnomalyFlag{{Symbol: "S01", Date: base, Rule: "pump_no_delivery"}}

	table := BuildTable(contracts.Horizon{Name: "daily", Days: 5}, set, rows, flags)

	require.Len(t, table.Rows, 4)
	require.Len(t, table.Labels, 4)
	assert.Equal(t, "S00", table.Rows[0].Symbol)
	assert.True(t, table.Rows[0].Date.Equal(base))
	assert.Equal(t, "S00", table.Rows[1].Symbol)
	assert.True(t, table.Rows[1].Date.Equal(base.AddDate(0, 0, 1)))
	assert.Equal(t, "S01", table.Rows[2].Symbol)
	assert.Equal(t, "S00", table.Rows[3].Symbol)
	assert.True(t, table.Rows[3].Date.Equal(base.AddDate(0, 0, 2)))
}

func TestTimeSeriesFolds(t *testing.T) {
	set, _ := syntheticSet(12, 2)

	folds := TimeSeriesFolds(set.Vectors, 3, 1)
	require.Len(t, folds, 3)

	// 3 dates per test block, train ends one date before the block
	assert.Equal(t, []int{0, 1, 2, 3}, folds[0].Train)
	assert.Equal(t, []int{6, 7, 8, 9, 10, 11}, folds[0].Test)
	assert.Len(t, folds[2].Train, 16)
	assert.Equal(t, 23, folds[2].Test[len(folds[2].Test)-1])

	for _, f := range folds {
		last := set.Vectors[f.Train[len(f.Train)-1]].Date
		first := set.Vectors[f.Test[0]].Date
		assert.True(t, last.Before(first))
	}

	assert.Nil(t, TimeSeriesFolds(set.Vectors, 0, 0))
	assert.Nil(t, TimeSeriesFolds(set.Vectors[:4], 5, 0))
}

func TestAUC(t *testing.T) {
	assert.InDelta(t, 1.0, AUC([]float64{0.1, 0.2, 0.8, 0.9}, []int{0, 0, 1, 1}), 1e-12)
	assert.InDelta(t, 0.0, AUC([]float64{0.9, 0.8, 0.2, 0.1}, []int{0, 0, 1, 1}), 1e-12)
	assert.InDelta(t, 0.5, AUC([]float64{0.5, 0.5, 0.5, 0.5}, []int{0, 1, 0, 1}), 1e-12)
	assert.InDelta(t, 0.75, AUC([]float64{0.1, 0.4, 0.35, 0.8}, []int{0, 0, 1, 1}), 1e-12)
	assert.True(t, contracts.IsUnknown(AUC([]float64{0.1, 0.2}, []int{1, 1})))
	assert.True(t, contracts.IsUnknown(AUC(nil, nil)))
}

func TestNormalization(t *testing.T) {
	rows := []contracts.FeatureVector{
		{Values: []float64{1, 5, contracts.Unknown}},
		{Values: []float64{3, 5, contracts.Unknown}},
	}
	n := FitNormalization(rows, 3)

	assert.Equal(t, []float64{2, 5, 0}, n.Mean)
	assert.InDelta(t, math.Sqrt2, n.Std[0], 1e-12)
	assert.Equal(t, 1.0, n.Std[1])
	assert.Equal(t, 1.0, n.Std[2])

	out := n.Apply([]float64{2 + math.Sqrt2, 7, contracts.Unknown})
	assert.InDelta(t, 1.0, out[0], 1e-12)
	assert.InDelta(t, 2.0, out[1], 1e-12)
	assert.True(t, contracts.IsUnknown(out[2]))
}

func TestModelStore_VersionsAndLatest(t *testing.T) {
	store := NewModelStore(t.TempDir())
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	newModel := func() *Model {
		return &Model{
			Horizon:       contracts.Horizon{Name: "daily", Days: 5, Threshold: 0.03},
			TrainedOn:     day,
			FeatureNames:  []string{"a"},
			Normalization: Normalization{Mean: []float64{0}, Std: []float64{1}},
			Kind:          classifier.Kind,
		}
	}

	_, _, err := store.Load("daily", "")
	assert.True(t, errors.Is(err, contracts.ErrModelNotFound))

	first, err := store.Save(newModel())
	require.NoError(t, err)
	second, err := store.Save(newModel())
	require.NoError(t, err)

	assert.Equal(t, "daily_20240315_v1", first.ID())
	assert.Equal(t, "daily_20240315_v2", second.ID())
	assert.FileExists(t, first.Path)

	latest, err := store.Latest("daily")
	require.NoError(t, err)
	assert.Equal(t, second.Path, latest.Path)

	m, a, err := store.Load("daily", "")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Version)
	assert.Equal(t, second.Path, a.Path)
	assert.True(t, m.TrainedOn.Equal(day))

	old, _, err := store.Load("daily", "20240315_v1")
	require.NoError(t, err)
	assert.Equal(t, 1, old.Version)

	_, _, err = store.Load("daily", "daily_20240315_v9")
	assert.True(t, errors.Is(err, contracts.ErrModelNotFound))
	_, _, err = store.Load("daily", "latest-ish")
	assert.Error(t, err)

	list, err := store.List("daily")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].Latest)
	assert.True(t, list[1].Latest)

	// 저장된 바이트 = 다시 읽은 모델의 인코딩
	onDisk, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	again, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, onDisk, again)

	entries, err := os.ReadDir(filepath.Dir(second.Path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestTrainer_TrainsAndSkips(t *testing.T) {
	trainer, store := testTrainer(t, 100)
	set, rows := syntheticSet(30, 8)

	monthly := make([]contracts.LabelRow, 0)
	for _, r := range rows[:40] {
		r.Horizon = "monthly"
		monthly = append(monthly, r)
	}

	report, err := trainer.Train(context.Background(), Input{
		AsOf:     base.AddDate(0, 0, 40),
		Features: set,
		Labels:   map[string][]contracts.LabelRow{"daily": rows, "monthly": monthly},
		Horizons: []contracts.Horizon{
			{Name: "daily", Days: 1, Threshold: 0.03},
			{Name: "monthly", Days: 2, Threshold: 0.08},
		},
		ConfigHash: "abc",
	})
	require.NoError(t, err)

	require.Contains(t, report.Trained, "daily")
	require.Contains(t, report.Skipped, "monthly")
	assert.Contains(t, report.Skipped["monthly"], "40 rows < minimum 100")

	daily := report.Trained["daily"]
	assert.Equal(t, 240, daily.Rows)
	assert.Equal(t, 3, len(daily.CV.Folds))
	assert.Greater(t, daily.CV.MeanAUC, 0.8)
	require.NotEmpty(t, daily.Importance)
	assert.Equal(t, "a", daily.Importance[0].Feature)

	m, _, err := store.Load("daily", "")
	require.NoError(t, err)
	assert.Equal(t, "abc", m.ConfigHash)
	assert.Equal(t, []string{"a", "b"}, m.FeatureNames)

	p, err := m.Predict([]float64{0.9, contracts.Unknown})
	require.NoError(t, err)
	assert.Greater(t, p, 0.5)
	p, err = m.Predict([]float64{-0.9, 3})
	require.NoError(t, err)
	assert.Less(t, p, 0.5)

	_, err = m.Predict([]float64{1})
	assert.Error(t, err)

	_, err = store.Latest("monthly")
	assert.True(t, errors.Is(err, contracts.ErrModelNotFound))
}

func TestModel_Align(t *testing.T) {
	m := &Model{FeatureNames: []string{"b", "a", "c"}}
	out := m.Align([]string{"a", "b"}, []float64{1, 2})
	assert.Equal(t, 2.0, out[0])
	assert.Equal(t, 1.0, out[1])
	assert.True(t, contracts.IsUnknown(out[2]))
}

func TestRankImportance(t *testing.T) {
	names := make([]string, 25)
	shares := make([]float64, 25)
	for i := range names {
		names[i] = fmt.Sprintf("f%02d", i)
		shares[i] = float64(i)
	}
	top := rankImportance(names, shares)
	require.Len(t, top, topImportance)
	assert.Equal(t, "f24", top[0].Feature)
	assert.Equal(t, "f05", top[19].Feature)
}
