package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/smartflow/internal/api"
	"github.com/wonny/smartflow/internal/api/handlers"
	"github.com/wonny/smartflow/internal/audit"
	"github.com/wonny/smartflow/internal/s0_data/quality"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `예측/품질/모델/실행 기록 조회용 읽기 전용 REST API 서버를 시작합니다.

Endpoints:
  GET  /health                          - Health check
  GET  /metrics                         - Prometheus
  GET  /api/predictions/latest          - 최신 예측 (?horizon=&limit=)
  GET  /api/predictions/{date}          - 날짜별 예측
  GET  /api/quality                     - 품질 리포트 날짜 목록
  GET  /api/quality/latest              - 최신 품질 리포트
  GET  /api/quality/{date}              - 날짜별 품질 리포트
  GET  /api/models/{horizon}            - 호라이즌별 모델 목록
  GET  /api/models/{horizon}/{version}  - 모델 요약 (version=latest 가능)
  GET  /api/runs                        - 실행 기록 (DATABASE_URL 필요)
  GET  /api/runs/{id}                   - 실행 기록 상세

Example:
  go run ./cmd/smartflow api
  go run ./cmd/smartflow api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	var runRepo *audit.Repository
	if a.db != nil {
		runRepo = audit.NewRepository(a.db.Pool)
	}

	h := api.Handlers{
		Predictions: handlers.NewPredictionHandler(a.orchestrator.Output(), a.cache, a.log),
		Quality:     handlers.NewQualityHandler(quality.NewStore(a.cfg.Pipeline.QualityDir()), a.log),
		Models:      handlers.NewModelHandler(a.orchestrator.Models(), a.log),
		Runs:        handlers.NewRunHandler(runRepo, a.log),
	}

	rec := a.metrics
	if !a.cfg.MetricsEnabled {
		rec = nil
	}
	limiter := api.NewRateLimiter(a.cfg.API.RateLimit, a.cfg.API.Burst)
	router := api.NewRouter(h, limiter, rec, a.log)
	server := api.New(a.cfg, a.log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
