package scheduler

import (
	"context"

	"github.com/quantfold/nextday/internal/pipeline"
)

// PipelineJob runs the daily pipeline on a cron schedule.
type PipelineJob struct {
	pipe *pipeline.Pipeline
	spec string
}

// NewPipelineJob wraps the pipeline with a cron spec.
func NewPipelineJob(pipe *pipeline.Pipeline, spec string) *PipelineJob {
	return &PipelineJob{pipe: pipe, spec: spec}
}

func (j *PipelineJob) Name() string     { return "daily-pipeline" }
func (j *PipelineJob) Schedule() string { return j.spec }

func (j *PipelineJob) Run(ctx context.Context) error {
	_, err := j.pipe.Run(ctx)
	return err
}
