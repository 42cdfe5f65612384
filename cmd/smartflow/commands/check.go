package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/s0_data/ingest"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "원시 데이터 가용성 확인",
	Long: `소스별 raw 디렉토리의 파일 수와 날짜 범위를 확인합니다 (파싱 없음).

확인 소스:
- bhav: 가격/거래량 (필수)
- delivery: MTO 인도율
- fii_dii: FII/DII 순매수
- participant_oi: 참여자별 미결제약정
- bulk_block: 대량/블록 거래

Example:
  go run ./cmd/smartflow check`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	adapter := ingest.NewAdapter(a.cfg.Pipeline.RawDir(), a.pipeline.Ingest, a.cfg.Pipeline.Workers, a.metrics, a.log)
	sources, err := adapter.CheckAvailability()
	if err != nil {
		return fmt.Errorf("check availability: %w", err)
	}

	PrintHeader("Data Availability", a.cfg.Pipeline.RawDir())

	widths := []int{16, 7, 12, 12}
	PrintTableHeader([]string{"SOURCE", "FILES", "FIRST", "LAST"}, widths)
	missing := 0
	for _, s := range sources {
		first, last := "-", "-"
		if s.Files > 0 {
			first, last = contracts.DateKey(s.First), contracts.DateKey(s.Last)
		} else {
			missing++
		}
		PrintTableRow([]string{s.Source, strconv.Itoa(s.Files), first, last}, widths)
	}
	fmt.Println()

	if len(sources) > 0 && sources[0].Files == 0 {
		PrintError("bhavcopy 파일이 없습니다: " + sources[0].Dir)
		return contracts.Fatal("no bhavcopy files under %s", sources[0].Dir)
	}
	if missing > 0 {
		PrintWarning(fmt.Sprintf("%d개 소스에 파일이 없습니다 (해당 피처는 unknown 으로 처리)", missing))
		return nil
	}
	PrintSuccess("모든 소스 확인 완료")
	return nil
}
