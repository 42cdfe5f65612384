package brain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/internal/s0_data/quality"
	"github.com/wonny/smartflow/pkg/config"
	"github.com/wonny/smartflow/pkg/logger"
	"github.com/wonny/smartflow/pkg/metrics"
)

const (
	sessions = 130
	illiquid = "TINY"
)

var symbols = []string{"ALPHA", "BETA", "DELTA", "GAMMA", "KAPPA", "OMEGA", "SIGMA", "THETA", "ZETA", illiquid}

type rawOptions struct {
	// 마지막에 delivery 가 한 종목뿐인 날짜를 추가 (hard fail)
	brokenLastDay bool
	// 모든 날짜의 delivery 를 한 종목으로 제한
	brokenAll bool
	// stepDay 부터 stepSymbol 의 가격이 1.5배로 올라 유지됨 (0 이면 없음)
	stepSymbol string
	stepDay    int
}

func weekdays(n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); len(out) < n; d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
	}
	return out
}

func writeRaw(t *testing.T, root string, opts rawOptions) []time.Time {
	t.Helper()
	n := sessions
	if opts.brokenLastDay {
		n++
	}
	dates := weekdays(n)

	bhavDir := filepath.Join(root, "raw", "bhav")
	delDir := filepath.Join(root, "raw", "delivery")
	require.NoError(t, os.MkdirAll(bhavDir, 0o755))
	require.NoError(t, os.MkdirAll(delDir, 0o755))

	rng := rand.New(rand.NewPCG(7, 11))
	closes := make(map[string]float64, len(symbols))
	for i, s := range symbols {
		closes[s] = 100 + 10*float64(i)
	}

	for di, d := range dates {
		broken := opts.brokenAll || (opts.brokenLastDay && di == len(dates)-1)

		var bhav, mto strings.Builder
		bhav.WriteString("TradDt,TckrSymb,SctySrs,OpnPric,HghPric,LwPric,ClsPric,LastPric,TtlTradgVol,TtlNbOfTxsExctd\n")
		mto.WriteString("Security Wise Delivery Position - Compulsory Rolling Settlement\n")
		mto.WriteString("Record Type,Sr No,Name of Security,Quantity Traded,Deliverable Quantity(gross across client level),% of Deliverable Quantity to Traded Quantity\n")

		for si, s := range symbols {
			open := closes[s]
			r := math.Max(-0.08, math.Min(0.08, rng.NormFloat64()*0.025))
			cl := open * (1 + r)
			if s == opts.stepSymbol && di == opts.stepDay {
				cl *= 1.5
			}
			closes[s] = cl

			vol := math.Round(500000 * (0.8 + 0.4*rng.Float64()))
			if s == illiquid {
				vol = math.Round(1000 * (0.8 + 0.4*rng.Float64()))
			}
			pct := 40 + 30*rng.Float64()

			fmt.Fprintf(&bhav, "%s,%s,EQ,%.2f,%.2f,%.2f,%.2f,%.2f,%.0f,%d\n",
				d.Format("2006-01-02"), s, open, math.Max(open, cl)*1.005, math.Min(open, cl)*0.995, cl, cl, vol, 1000+si)
			if broken && si > 0 {
				continue
			}
			fmt.Fprintf(&mto, "20,%d,%s,EQ,%.0f,%.0f,%.2f\n", si+1, s, vol, math.Round(vol*pct/100), pct)
		}

		require.NoError(t, os.WriteFile(filepath.Join(bhavDir, "bhav_"+d.Format("20060102")+".csv"), []byte(bhav.String()), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(delDir, "MTO_"+d.Format("02012006")+".DAT"), []byte(mto.String()), 0o644))
	}
	return dates
}

func testConfig() *pipelineconfig.Config {
	cfg := pipelineconfig.Default()
	cfg.Labels.Horizons = []contracts.Horizon{
		{Name: "daily", Days: 5, Threshold: 0.03},
		{Name: "weekly", Days: 20, Threshold: 0.05},
		{Name: "monthly", Days: 60, Threshold: 0.08},
	}
	cfg.Training.MinRows = 200
	cfg.Training.CVSplits = 2
	cfg.Training.Classifier.NEstimators = 20
	cfg.Training.Classifier.MaxDepth = 3
	cfg.Training.Classifier.LearningRate = 0.1
	cfg.Ranking.TopN = 5
	return cfg
}

func newTestOrchestrator(t *testing.T, root string) *Orchestrator {
	t.Helper()
	paths := config.PipelineConfig{
		DataDir:   root,
		OutputDir: filepath.Join(root, "outputs"),
		Workers:   4,
	}
	o, err := NewOrchestrator(testConfig(), paths, metrics.New(), logger.Nop())
	require.NoError(t, err)
	return o
}

func TestOrchestrator_TrainThenPredict(t *testing.T) {
	root := t.TempDir()
	dates := writeRaw(t, root, rawOptions{brokenLastDay: true})
	lastAccepted := dates[len(dates)-2]
	broken := contracts.DateKey(dates[len(dates)-1])

	o := newTestOrchestrator(t, root)
	ctx := context.Background()

	tr, err := o.Train(ctx)
	require.NoError(t, err)

	run := tr.Run
	assert.True(t, run.Success)
	assert.Equal(t, lastAccepted, run.AsOf)
	assert.Equal(t, sessions+1, run.Summary.Dates)
	assert.Equal(t, sessions, run.Summary.AcceptedDates)
	assert.Contains(t, run.Summary.ExcludedDates, broken)
	assert.NotEmpty(t, run.Stages)

	require.NotNil(t, tr.Training)
	assert.Contains(t, tr.Training.Trained, "daily")
	assert.Contains(t, tr.Training.Trained, "weekly")
	assert.Contains(t, tr.Training.Skipped, "monthly")
	assert.Equal(t, "daily_"+lastAccepted.Format("20060102")+"_v1", run.Summary.Trained["daily"])

	artifacts, err := o.Models().List("daily")
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.True(t, artifacts[0].Latest)
	assert.FileExists(t, filepath.Join(root, "processed", "features_"+lastAccepted.Format("20060102")+".msgpack"))
	assert.FileExists(t, filepath.Join(root, "quality", "quality_"+dates[len(dates)-1].Format("20060102")+".json"))

	pr, err := o.Predict(ctx, PredictOptions{})
	require.NoError(t, err)
	table := pr.Table

	assert.Equal(t, lastAccepted, table.AsOf)
	assert.Equal(t, o.ConfigHash(), table.ConfigHash)
	assert.Contains(t, table.ByHorizon, "daily")
	assert.Contains(t, table.ByHorizon, "weekly")
	assert.NotContains(t, table.ByHorizon, "monthly")
	assert.Contains(t, table.Skipped, "monthly")
	assert.LessOrEqual(t, len(table.Combined), 5)
	assert.FileExists(t, pr.CSVPath)
	assert.FileExists(t, pr.JSONPath)

	for h, preds := range table.ByHorizon {
		assert.NotEmpty(t, preds, h)
		assert.LessOrEqual(t, len(preds), 5)
		for i, p := range preds {
			assert.Equal(t, i+1, p.Rank)
			assert.Equal(t, lastAccepted, p.AsOf)
			assert.NotEqual(t, illiquid, p.Symbol, "illiquid symbols never reach Top-N")
			assert.False(t, math.IsNaN(p.Probability))
			if i > 0 {
				assert.GreaterOrEqual(t, preds[i-1].Probability, p.Probability)
			}
		}
	}

	again, err := o.Predict(ctx, PredictOptions{})
	require.NoError(t, err)
	for h, preds := range table.ByHorizon {
		other := again.Table.ByHorizon[h]
		require.Len(t, other, len(preds))
		for i := range preds {
			assert.Equal(t, preds[i].Symbol, other[i].Symbol)
			assert.Equal(t, preds[i].Probability, other[i].Probability)
		}
	}

	pinned, err := o.Predict(ctx, PredictOptions{ModelVersion: lastAccepted.Format("20060102") + "_v1"})
	require.NoError(t, err)
	assert.Equal(t, table.ByHorizon["daily"][0].Probability, pinned.Table.ByHorizon["daily"][0].Probability)
}

func TestOrchestrator_PredictWithoutModels(t *testing.T) {
	root := t.TempDir()
	writeRaw(t, root, rawOptions{})

	_, err := newTestOrchestrator(t, root).Predict(context.Background(), PredictOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrModelNotFound))
}

func TestOrchestrator_FatalConditions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, root string)
	}{
		{
			name:  "no raw data",
			setup: func(t *testing.T, root string) {},
		},
		{
			name: "every date hard-fails",
			setup: func(t *testing.T, root string) {
				writeRaw(t, root, rawOptions{brokenAll: true})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			tt.setup(t, root)

			res, err := newTestOrchestrator(t, root).Train(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, contracts.ErrFatalRun), err.Error())
			assert.False(t, res.Run.Success)
			assert.NotEmpty(t, res.Run.Error)
		})
	}
}

func TestOrchestrator_CheckQuality(t *testing.T) {
	root := t.TempDir()
	dates := writeRaw(t, root, rawOptions{brokenLastDay: true})

	res, err := newTestOrchestrator(t, root).CheckQuality(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Run.Success)
	assert.Equal(t, "quality", res.Run.Kind)
	assert.Equal(t, dates[len(dates)-2], res.Run.AsOf)
	assert.Equal(t, len(symbols), res.Run.Summary.Symbols)
	assert.Contains(t, res.Run.Summary.ExcludedDates, contracts.DateKey(dates[len(dates)-1]))
	require.NotNil(t, res.Coverage)
	assert.Empty(t, res.Coverage.MissingDates)
	assert.NoDirExists(t, filepath.Join(root, "models"))
}

func TestOrchestrator_CheckQuality_StepChangeExcludesOneDay(t *testing.T) {
	root := t.TempDir()
	dates := writeRaw(t, root, rawOptions{stepSymbol: "ALPHA", stepDay: 40})

	res, err := newTestOrchestrator(t, root).CheckQuality(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Run.Summary.SoftExcluded)
	require.NotNil(t, res.Coverage)
	assert.InDelta(t, 1.0, res.Coverage.SymbolCoverage["BETA"], 1e-9)
	assert.InDelta(t, float64(sessions-1)/float64(sessions), res.Coverage.SymbolCoverage["ALPHA"], 1e-9)

	store := quality.NewStore(filepath.Join(root, "quality"))
	jump, err := store.Load(dates[40])
	require.NoError(t, err)
	assert.Contains(t, jump.SoftExcluded["ALPHA"], quality.CheckPriceContinuity)

	after, err := store.Load(dates[41])
	require.NoError(t, err)
	assert.True(t, after.Admits("ALPHA"), "the new price level is the reference from the next day on")
}
