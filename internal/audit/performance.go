package audit

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/labels"
	"github.com/wonny/smartflow/internal/risk"
	"github.com/wonny/smartflow/pkg/logger"
)

const (
	tailConfidence  = 0.95
	calibrationBins = 10
)

// Analyzer scores past Top-N lists against the labels realized since
// ⭐ SSOT: 예측 사후 성과 평가는 여기서만
type Analyzer struct {
	logger *logger.Logger
}

// NewAnalyzer creates a new performance analyzer
func NewAnalyzer(log *logger.Logger) *Analyzer {
	return &Analyzer{logger: log.Component("audit.performance")}
}

// PerformanceReport is the realized outcome of one horizon's Top-N list
type PerformanceReport struct {
	AsOf      time.Time `json:"as_of"`
	Horizon   string    `json:"horizon"`
	Listed    int       `json:"listed"`
	Evaluated int       `json:"evaluated"`
	Pending   int       `json:"pending"` // 아직 forward window 가 닫히지 않음
	Hits      int       `json:"hits"`
	HitRate   float64   `json:"hit_rate"`

	MeanForwardReturn float64 `json:"mean_forward_return"`

	// 같은 날짜 전체 라벨의 양성 비율
	BaseRate float64 `json:"base_rate"`
	Lift     float64 `json:"lift"`

	// 실현 forward return 의 하방 꼬리와 확률 캘리브레이션 (평가된 종목만)
	Tail        risk.VaRResult         `json:"tail"`
	Calibration risk.CalibrationReport `json:"calibration"`
}

// Complete reports whether every listed symbol has a realized label
func (p *PerformanceReport) Complete() bool {
	return p.Listed > 0 && p.Pending == 0
}

// Evaluate compares each horizon list of a ranked table with realized labels.
// Horizons whose labels are not yet known report Evaluated = 0.
func (a *Analyzer) Evaluate(table *contracts.RankedTable, rows map[string][]contracts.LabelRow) []PerformanceReport {
	horizons := make([]string, 0, len(table.ByHorizon))
	for h := range table.ByHorizon {
		horizons = append(horizons, h)
	}
	sort.Strings(horizons)

	asOf := contracts.DateKey(table.AsOf)
	out := make([]PerformanceReport, 0, len(horizons))
	for _, h := range horizons {
		preds := table.ByHorizon[h]
		report := PerformanceReport{
			AsOf:    contracts.Day(table.AsOf),
			Horizon: h,
			Listed:  len(preds),
		}
		index := labels.Index(rows[h])

		returns := make([]float64, 0, len(preds))
		probs := make([]float64, 0, len(preds))
		realized := make([]int, 0, len(preds))
		for _, p := range preds {
			row, ok := index[contracts.RecordKey{Symbol: p.Symbol, Date: asOf}]
			if !ok {
				report.Pending++
				continue
			}
			report.Evaluated++
			report.Hits += row.Label
			returns = append(returns, row.ForwardReturn)
			probs = append(probs, p.Probability)
			realized = append(realized, row.Label)
		}
		if report.Evaluated > 0 {
			report.HitRate = float64(report.Hits) / float64(report.Evaluated)
			report.MeanForwardReturn = stat.Mean(returns, nil)
			report.Tail = risk.CalculateVaR(returns, tailConfidence)
			report.Calibration = risk.Calibrate(probs, realized, calibrationBins)
		}

		total, positives := 0, 0
		for _, r := range rows[h] {
			if contracts.DateKey(r.Date) == asOf {
				total++
				positives += r.Label
			}
		}
		if total > 0 {
			report.BaseRate = float64(positives) / float64(total)
		}
		if report.BaseRate > 0 && report.Evaluated > 0 {
			report.Lift = report.HitRate / report.BaseRate
		}
		out = append(out, report)

		if report.Evaluated > 0 {
			a.logger.WithFields(map[string]interface{}{
				"as_of":     asOf,
				"horizon":   h,
				"evaluated": report.Evaluated,
				"hit_rate":  report.HitRate,
				"base_rate": report.BaseRate,
				"lift":      report.Lift,
				"var95":     report.Tail.VaR,
				"brier":     report.Calibration.Brier,
			}).Info("Prediction performance evaluated")
		}
	}
	return out
}
