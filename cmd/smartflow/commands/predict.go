package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/smartflow/internal/brain"
)

// predictCmd represents the predict command
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "최신 거래일 매수 확률 예측",
	Long: `마지막으로 품질 게이트를 통과한 거래일에 대해 호라이즌별 Top-N 과
통합 Top-N 을 계산하고 outputs/predictions 에 CSV/JSON 으로 저장합니다.

기본은 호라이즌별 LATEST 모델. 과거 모델은 --model-version 으로 명시해야 합니다.

Example:
  go run ./cmd/smartflow predict
  go run ./cmd/smartflow predict --model-version 20240315_v1`,
	RunE: runPredict,
}

var modelVersion string

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVar(&modelVersion, "model-version", "", "모든 호라이즌에 고정할 모델 버전 (YYYYMMDD_vN)")
}

func runPredict(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.orchestrator.Predict(cmd.Context(), brain.PredictOptions{ModelVersion: modelVersion})
	PrintHeader("Prediction Run", a.cfg.Pipeline.OutputDir)
	printRunSummary(res.Run)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	printTable(res.Table, "", a.pipeline.Ranking.TopN)
	if verbose {
		printStages(res.Run)
	}

	fmt.Println()
	PrintSuccess("Saved " + res.CSVPath)
	PrintSuccess("Saved " + res.JSONPath)
	return nil
}
