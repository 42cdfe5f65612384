package contracts

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Per-row and per-date failures are recorded in run reports;
// only ErrFatalRun aborts a run.
var (
	ErrIngestion                = errors.New("ingestion error")
	ErrQualityHardFailure       = errors.New("quality hard failure")
	ErrQualitySoftFailure       = errors.New("quality soft failure")
	ErrInsufficientHistory      = errors.New("insufficient history")
	ErrTrainingDataInsufficient = errors.New("training data insufficient")
	ErrFatalRun                 = errors.New("fatal run error")
	ErrModelNotFound            = errors.New("model not found")
)

// IngestionError reports a file whose malformed-row fraction crossed the tolerance
type IngestionError struct {
	Date     time.Time
	File     string
	Skipped  int
	Expected int
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s (%s): %d of %d rows malformed",
		e.File, DateKey(e.Date), e.Skipped, e.Expected)
}

func (e *IngestionError) Unwrap() error { return ErrIngestion }

// TrainingSkip reports a horizon that was not trained
type TrainingSkip struct {
	Horizon string
	Rows    int
	Min     int
}

func (e *TrainingSkip) Error() string {
	return fmt.Sprintf("horizon %s: %d rows < minimum %d", e.Horizon, e.Rows, e.Min)
}

func (e *TrainingSkip) Unwrap() error { return ErrTrainingDataInsufficient }

// Fatal wraps a global condition as ErrFatalRun
func Fatal(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrFatalRun, fmt.Sprintf(format, args...))
}
