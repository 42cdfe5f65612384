package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "호라이즌별 모델 학습",
	Long: `전체 히스토리로 피처/라벨 테이블을 만들고 호라이즌별 모델을 학습합니다.

ingest → quality → reconcile → features → labels → anomaly → training

- 호라이즌별 시계열 CV (ROC-AUC) 와 피처 중요도 출력
- 모델은 models/<horizon>/ 에 새 버전으로 저장되고 LATEST 가 갱신됨
- 행 수가 부족한 호라이즌은 건너뜀

Example:
  go run ./cmd/smartflow train
  go run ./cmd/smartflow train --pipeline config/pipeline.yaml`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.orchestrator.Train(cmd.Context())
	PrintHeader("Training Run", a.cfg.Pipeline.DataDir)
	printRunSummary(res.Run)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	horizons := make([]string, 0, len(res.Training.Trained))
	for h := range res.Training.Trained {
		horizons = append(horizons, h)
	}
	sort.Strings(horizons)

	fmt.Println()
	widths := []int{10, 24, 7, 9, 14, 36}
	PrintTableHeader([]string{"HORIZON", "MODEL", "ROWS", "POS", "CV AUC", "TOP FEATURES"}, widths)
	for _, h := range horizons {
		r := res.Training.Trained[h]
		top := make([]string, 0, 3)
		for i, imp := range r.Importance {
			if i == 3 {
				break
			}
			top = append(top, imp.Feature)
		}
		auc := "-"
		if r.CV.Scored > 0 {
			auc = FormatFloat(r.CV.MeanAUC, 3) + " ±" + FormatFloat(r.CV.StdAUC, 3)
		}
		pos := FormatPercent(r.PositiveRatio)
		if r.Imbalanced {
			pos += "!"
		}
		PrintTableRow([]string{h, r.Artifact.ID(), strconv.Itoa(r.Rows), pos, auc, strings.Join(top, ", ")}, widths)
	}

	if perf := res.Run.Summary.Performance; len(perf) > 0 {
		fmt.Println()
		PrintInfo("Realized performance of past predictions")
		pw := []int{12, 10, 10, 9, 6, 8, 6}
		PrintTableHeader([]string{"AS-OF", "HORIZON", "EVALUATED", "HIT RATE", "LIFT", "VAR95", "BRIER"}, pw)
		for _, p := range perf {
			PrintTableRow([]string{
				p.AsOf.Format("2006-01-02"), p.Horizon, strconv.Itoa(p.Evaluated),
				FormatPercent(p.HitRate), FormatFloat(p.Lift, 2),
				FormatPercent(p.Tail.VaR), FormatFloat(p.Calibration.Brier, 3),
			}, pw)
		}
	}

	if verbose {
		printStages(res.Run)
	}
	fmt.Println()
	PrintSuccess(fmt.Sprintf("Trained %d horizon(s) in %s", len(horizons), FormatDuration(res.Run.Duration)))
	return nil
}
