package commands

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/smartflow/internal/audit"
	"github.com/wonny/smartflow/internal/contracts"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "PostgreSQL 연결 및 감사 테이블 상태 확인",
	Long: `데이터베이스 연결을 테스트하고 감사 테이블과 최근 실행 기록을 표시합니다.

이 명령어는:
- config에서 DATABASE_URL 로드 후 연결/마이그레이션
- Health Check 및 Connection Pool 통계
- Redis 캐시 연결 상태
- audit 테이블별 행 수
- 최근 실행 기록 (--runs)

Example:
  go run ./cmd/smartflow db
  go run ./cmd/smartflow db --runs 20`,
	RunE: runDB,
}

var dbRuns int

func init() {
	rootCmd.AddCommand(dbCmd)

	dbCmd.Flags().IntVar(&dbRuns, "runs", 10, "표시할 최근 실행 기록 수")
}

// auditTables are counted by the db command
var auditTables = []string{"audit.runs", "audit.quality_reports", "audit.predictions", "audit.universe_snapshots"}

func runDB(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	PrintHeader("Database Status", maskPassword(a.cfg.Database.URL))
	printRedisStatus(cmd.Context(), a)
	if a.db == nil {
		PrintWarning("DATABASE_URL 이 설정되지 않았습니다 (파일 출력만 사용)")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	status, err := a.db.HealthCheck(ctx)
	if err != nil {
		PrintError("Health check failed: " + err.Error())
		return err
	}
	PrintKeyValue("Healthy", strconv.FormatBool(status.Healthy), 16)
	PrintKeyValue("Response time", status.ResponseTime.String(), 16)
	PrintKeyValue("Connections", fmt.Sprintf("%d/%d (idle %d, acquired %d)",
		status.Stats.TotalConns, status.Stats.MaxConns, status.Stats.IdleConns, status.Stats.AcquiredConns), 16)

	fmt.Println()
	widths := []int{26, 10}
	PrintTableHeader([]string{"TABLE", "ROWS"}, widths)
	for _, table := range auditTables {
		var n int64
		if err := a.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return fmt.Errorf("count %s: %w", table, err)
		}
		PrintTableRow([]string{table, strconv.FormatInt(n, 10)}, widths)
	}

	runs, err := audit.NewRepository(a.db.Pool).ListRuns(ctx, "", dbRuns)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	fmt.Println()
	rw := []int{36, 8, 11, 8, 10}
	PrintTableHeader([]string{"RUN", "KIND", "AS-OF", "STATUS", "DURATION"}, rw)
	for _, r := range runs {
		st := "ok"
		if !r.Success {
			st = "failed"
		}
		PrintTableRow([]string{r.RunID, r.Kind, contracts.DateKey(r.AsOf), st, FormatDuration(r.Duration)}, rw)
	}
	return nil
}

// printRedisStatus reports the cache connection (optional, never fails the command)
func printRedisStatus(ctx context.Context, a *app) {
	if !a.redis.Enabled() {
		PrintKeyValue("Redis", "disabled", 16)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	latency, err := a.redis.Ping(ctx)
	if err != nil {
		PrintWarning("Redis " + a.redis.Addr() + ": " + err.Error())
		return
	}
	PrintKeyValue("Redis", fmt.Sprintf("%s (%s)", a.redis.Addr(), latency.Round(time.Microsecond)), 16)
}

// maskPassword hides the password of a database URL
func maskPassword(raw string) string {
	if raw == "" {
		return "(not configured)"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable DATABASE_URL)"
	}
	return u.Redacted()
}
