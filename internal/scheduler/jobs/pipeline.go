package jobs

import (
	"context"

	"github.com/wonny/smartflow/internal/brain"
	"github.com/wonny/smartflow/pkg/logger"
)

// Pipeline is the part of the orchestrator the jobs drive
type Pipeline interface {
	Train(ctx context.Context) (*brain.TrainResult, error)
	Predict(ctx context.Context, opts brain.PredictOptions) (*brain.PredictResult, error)
}

// TrainJob retrains every horizon after the day's disclosures are published
type TrainJob struct {
	pipeline Pipeline
	schedule string
	logger   *logger.Logger
}

// NewTrainJob creates a new training job
func NewTrainJob(pipeline Pipeline, schedule string, log *logger.Logger) *TrainJob {
	return &TrainJob{
		pipeline: pipeline,
		schedule: schedule,
		logger:   log.Component("job.train"),
	}
}

// Name returns the job name
func (j *TrainJob) Name() string {
	return "train"
}

// Schedule returns the cron schedule (default: 19:30 on weekdays, after delivery data)
func (j *TrainJob) Schedule() string {
	return j.schedule
}

// Run executes the training pipeline
func (j *TrainJob) Run(ctx context.Context) error {
	res, err := j.pipeline.Train(ctx)
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":  res.Run.RunID,
		"as_of":   res.Run.AsOf.Format("2006-01-02"),
		"trained": len(res.Run.Summary.Trained),
		"skipped": len(res.Run.Summary.Skipped),
	}).Info("Scheduled training finished")
	return nil
}

// PredictJob ranks the latest session before the market opens
type PredictJob struct {
	pipeline Pipeline
	schedule string
	logger   *logger.Logger
}

// NewPredictJob creates a new prediction job
func NewPredictJob(pipeline Pipeline, schedule string, log *logger.Logger) *PredictJob {
	return &PredictJob{
		pipeline: pipeline,
		schedule: schedule,
		logger:   log.Component("job.predict"),
	}
}

// Name returns the job name
func (j *PredictJob) Name() string {
	return "predict"
}

// Schedule returns the cron schedule (default: 08:00 on weekdays)
func (j *PredictJob) Schedule() string {
	return j.schedule
}

// Run executes the prediction pipeline with each horizon's latest model
func (j *PredictJob) Run(ctx context.Context) error {
	res, err := j.pipeline.Predict(ctx, brain.PredictOptions{})
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":      res.Run.RunID,
		"as_of":       res.Run.AsOf.Format("2006-01-02"),
		"predictions": res.Run.Summary.Predictions,
		"output":      res.CSVPath,
	}).Info("Scheduled prediction finished")
	return nil
}
