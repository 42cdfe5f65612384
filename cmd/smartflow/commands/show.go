package commands

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/s2_features"
	"github.com/wonny/smartflow/internal/selection"
	"github.com/wonny/smartflow/pkg/config"
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "저장된 예측 결과 조회",
	Long: `outputs/predictions 의 최신 (또는 지정 날짜) 예측을 호라이즌별로 출력합니다.

Example:
  go run ./cmd/smartflow show
  go run ./cmd/smartflow show --horizon weekly --limit 5
  go run ./cmd/smartflow show --date 2024-03-15 --horizon combined`,
	RunE: runShow,
}

var (
	showDate    string
	showHorizon string
	showLimit   int
)

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().StringVar(&showDate, "date", "", "예측 기준일 (YYYY-MM-DD, 기본: 최신)")
	showCmd.Flags().StringVar(&showHorizon, "horizon", "", "호라이즌 (daily|weekly|monthly|combined, 기본: 전체)")
	showCmd.Flags().IntVar(&showLimit, "limit", 0, "호라이즌별 최대 행 수 (0 = 전체)")
}

func runShow(cmd *cobra.Command, args []string) error {
	// 파이프라인을 돌리지 않으므로 env 설정만 필요
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	output := selection.NewOutput(cfg.Pipeline.OutputDir)

	var table *contracts.RankedTable
	if showDate != "" {
		date, perr := time.ParseInLocation("2006-01-02", showDate, time.UTC)
		if perr != nil {
			return fmt.Errorf("invalid date format: %w", perr)
		}
		table, err = output.Load(date)
	} else {
		table, err = output.Latest()
	}
	if err != nil {
		PrintWarning("예측 결과가 없습니다. 먼저 predict 를 실행하세요.")
		return err
	}

	PrintHeader("Predictions "+contracts.DateKey(table.AsOf), "run "+table.RunID)
	printTable(table, showHorizon, showLimit)
	return nil
}

// printTable prints the per-horizon lists then the combined list
func printTable(table *contracts.RankedTable, horizon string, limit int) {
	horizons := make([]string, 0, len(table.ByHorizon))
	for h := range table.ByHorizon {
		horizons = append(horizons, h)
	}
	sort.Strings(horizons)

	switch horizon {
	case "":
		for _, h := range horizons {
			printPredictions(h, table.ByHorizon[h], limit)
		}
		printPredictions(selection.CombinedList, table.Combined, limit)
	case selection.CombinedList:
		printPredictions(selection.CombinedList, table.Combined, limit)
	default:
		preds, ok := table.ByHorizon[horizon]
		if !ok {
			PrintWarning("예측되지 않은 호라이즌: " + horizon)
			return
		}
		printPredictions(horizon, preds, limit)
	}

	if len(table.Skipped) > 0 {
		fmt.Println()
		PrintInfo("Skipped horizons")
		PrintList(sortedReasons(table.Skipped))
	}
}

func printPredictions(list string, preds []contracts.Prediction, limit int) {
	if limit > 0 && limit < len(preds) {
		preds = preds[:limit]
	}

	fmt.Println()
	fmt.Printf("📈 %s (%d)\n", list, len(preds))
	widths := []int{4, 14, 9, 8, 9, 9, 12, 12}
	PrintTableHeader([]string{"#", "SYMBOL", "HORIZON", "PROB", "DELIV%", "DELIV Z", "FII MA5", "DII MA5"}, widths)
	for _, p := range preds {
		z := "-"
		if p.DeliveryZScore != nil {
			z = FormatFloat(*p.DeliveryZScore, 2)
		}
		PrintTableRow([]string{
			strconv.Itoa(p.Rank),
			p.Symbol,
			p.Horizon,
			FormatPercent(p.Probability),
			snapshot(p, s2_features.DeliveryPct, 1),
			z,
			snapshot(p, s2_features.FIINetMA5, 0),
			snapshot(p, s2_features.DIINetMA5, 0),
		}, widths)
	}
}

func snapshot(p contracts.Prediction, name string, prec int) string {
	v, ok := p.Snapshot[name]
	if !ok {
		return "-"
	}
	return FormatFloat(v, prec)
}
