package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile   string
	env          string
	verbose      bool
	pipelineFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smartflow",
	Short: "SmartFlow - NSE 공시 기반 멀티 호라이즌 매수 확률 파이프라인",
	Long: `SmartFlow Unified CLI

거래소 일일 공시(bhavcopy, delivery, FII/DII, participant OI, bulk/block)를
품질 게이트 → 피처/라벨 → 호라이즌별 모델 → 랭킹으로 처리합니다.

Usage:
  go run ./cmd/smartflow [command]

Examples:
  go run ./cmd/smartflow check
  go run ./cmd/smartflow quality
  go run ./cmd/smartflow train
  go run ./cmd/smartflow predict
  go run ./cmd/smartflow show --horizon daily`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env 보다 명시 파일이 우선
		if configFile != "" {
			if err := godotenv.Overload(configFile); err != nil {
				return fmt.Errorf("load %s: %w", configFile, err)
			}
		}
		if cmd.Flags().Changed("env") {
			os.Setenv("ENV", env)
		}
		if verbose {
			os.Setenv("LOG_LEVEL", "debug")
		}
		if pipelineFile != "" {
			os.Setenv("PIPELINE_CONFIG", pipelineFile)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&pipelineFile, "pipeline", "", "pipeline.yaml (default: PIPELINE_CONFIG or built-in defaults)")
}
