package main

import (
	"errors"
	"os"

	"github.com/wonny/smartflow/cmd/smartflow/commands"
	"github.com/wonny/smartflow/internal/contracts"
)

// main is the entry point for the smartflow CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/smartflow [command]
func main() {
	if err := commands.Execute(); err != nil {
		// 전역 실패(데이터 없음, 전 날짜 품질 실패)는 별도 종료 코드
		if errors.Is(err, contracts.ErrFatalRun) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
