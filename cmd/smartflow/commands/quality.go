package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/s0_data/quality"
)

// qualityCmd represents the quality command
var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "품질 게이트 실행 및 커버리지 요약",
	Long: `모든 날짜를 수집해 품질 게이트를 통과시키고 커버리지를 요약합니다.
피처/라벨/모델은 만들지 않습니다. 리포트는 data/quality 에 저장됩니다.

--date 를 주면 저장된 해당 날짜 리포트만 출력합니다.

Example:
  go run ./cmd/smartflow quality
  go run ./cmd/smartflow quality --date 2024-03-15`,
	RunE: runQuality,
}

var qualityDate string

func init() {
	rootCmd.AddCommand(qualityCmd)

	qualityCmd.Flags().StringVar(&qualityDate, "date", "", "저장된 리포트 날짜 (YYYY-MM-DD)")
}

func runQuality(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if qualityDate != "" {
		date, err := time.ParseInLocation("2006-01-02", qualityDate, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid date format: %w", err)
		}
		report, err := quality.NewStore(a.cfg.Pipeline.QualityDir()).Load(date)
		if err != nil {
			return err
		}
		printQualityReport(report)
		return nil
	}

	res, err := a.orchestrator.CheckQuality(cmd.Context())
	PrintHeader("Quality Gate", a.cfg.Pipeline.RawDir())
	printRunSummary(res.Run)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	cov := res.Coverage
	fmt.Println()
	PrintKeyValue("Period", contracts.DateKey(cov.From)+" ~ "+contracts.DateKey(cov.To), 14)
	PrintKeyValue("Weekdays", strconv.Itoa(cov.ExpectedDays), 14)
	PrintKeyValue("Avg coverage", FormatPercent(cov.AverageCoverage), 14)
	PrintKeyValue("Full coverage", strconv.Itoa(cov.FullCoverage), 14)
	PrintKeyValue("Below 90%", strconv.Itoa(cov.BelowNinetyPct), 14)

	if len(cov.MissingDates) > 0 {
		missing := make([]string, len(cov.MissingDates))
		for i, d := range cov.MissingDates {
			missing[i] = contracts.DateKey(d)
		}
		PrintWarning(fmt.Sprintf("Missing weekdays (%d): %s", len(missing), strings.Join(missing, ", ")))
		return nil
	}
	fmt.Println()
	PrintSuccess("No missing trading days")
	return nil
}

func printQualityReport(report *contracts.QualityReport) {
	verdict := "accepted"
	switch {
	case report.HardFailed:
		verdict = "excluded (hard failure)"
	case report.ReducedConfidence:
		verdict = "accepted (reduced confidence)"
	}

	PrintHeader("Quality Report "+contracts.DateKey(report.Date), verdict)
	PrintKeyValue("Input hash", shortHash(report.InputHash), 12)
	PrintKeyValue("Symbols", strconv.Itoa(report.Symbols), 12)
	PrintKeyValue("Soft excl.", strconv.Itoa(len(report.SoftExcluded)), 12)
	fmt.Println()

	widths := []int{26, 12, 6, 8, 30}
	PrintTableHeader([]string{"CHECK", "CLASS", "STATUS", "SCORE", "DETAIL"}, widths)
	for _, c := range report.Checks {
		PrintTableRow([]string{c.Name, string(c.Class), string(c.Status), FormatFloat(c.Score, 3), c.Detail}, widths)
	}
}
