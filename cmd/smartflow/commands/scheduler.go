package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/smartflow/internal/scheduler"
	"github.com/wonny/smartflow/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `장 마감 후 학습, 장 시작 전 예측을 cron 으로 실행합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업과 다음 실행 시각
  run     - 특정 작업 즉시 실행 (재시도 정책 적용)

Example:
  go run ./cmd/smartflow scheduler start
  go run ./cmd/smartflow scheduler list
  go run ./cmd/smartflow scheduler run predict`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업 (SCHEDULER_TZ, 기본 Asia/Kolkata):
- train: 평일 19:30 (SCHEDULE_TRAIN)
- predict: 평일 08:00 (SCHEDULE_PREDICT)

METRICS_ENABLED 이면 METRICS_PORT 에서 /metrics 를 노출합니다.
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	var metricsServer *http.Server
	if a.cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		metricsServer = &http.Server{Addr: ":" + a.cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	sched.Start()

	PrintHeader("SmartFlow Scheduler", "timezone "+a.cfg.Scheduler.Timezone)
	printNextRuns(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(ctx)
	}
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	// Entry.Next 는 cron 이 시작돼야 채워짐
	sched.Start()
	defer sched.Stop()

	printNextRuns(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, sched, err := initScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunNow(cmd.Context(), jobName)
	if err != nil {
		PrintError(fmt.Sprintf("%s failed after %d attempt(s): %v", jobName, result.Attempts, err))
		return err
	}

	PrintSuccess(fmt.Sprintf("%s completed in %s (%d attempt(s))", jobName, result.Duration.Round(time.Millisecond), result.Attempts))
	return nil
}

func printNextRuns(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	next := sched.NextRuns()

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println()
	widths := []int{10, 18, 26}
	PrintTableHeader([]string{"JOB", "SCHEDULE", "NEXT RUN"}, widths)
	for _, name := range names {
		nextRun := "-"
		if t, ok := next[name]; ok && !t.IsZero() {
			nextRun = t.Format("2006-01-02 15:04:05 MST")
		}
		PrintTableRow([]string{name, stats[name].Schedule, nextRun}, widths)
	}
}

func initScheduler(ctx context.Context) (*app, *scheduler.Scheduler, error) {
	a, err := newApp(ctx)
	if err != nil {
		return nil, nil, err
	}

	sc := a.cfg.Scheduler
	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		a.close()
		return nil, nil, fmt.Errorf("load timezone: %w", err)
	}

	sched := scheduler.New(scheduler.Options{
		Location:   loc,
		MaxRetries: sc.MaxRetries,
		RetryDelay: sc.RetryDelay,
		Timeout:    sc.Timeout,
	}, a.log)

	for _, job := range []scheduler.Job{
		jobs.NewTrainJob(a.orchestrator, sc.TrainSchedule, a.log),
		jobs.NewPredictJob(a.orchestrator, sc.PredictSchedule, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			a.close()
			return nil, nil, fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}

	return a, sched, nil
}
