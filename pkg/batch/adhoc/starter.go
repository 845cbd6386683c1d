// Package adhoc はジョブ名、またはその場で組み立てた 1 ステップのジョブを起動する Starter を提供します。
package adhoc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/builder"
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/incrementer"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/joblauncher"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/registry"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// StepName はアドホックジョブの唯一のステップ名です。
const StepName = "step"

// Starter はジョブカタログのジョブ、アドホックジョブ、組み立て済みのジョブを起動します。
// 内部状態を持たないため、複数の goroutine から同時に使用できます。
type Starter struct {
	jobLocator  registry.JobLocator
	jobLauncher joblauncher.JobLauncher
	jobs        *builder.JobBuilderFactory
	steps       *builder.StepBuilderFactory
	tracer      trace.Tracer
}

// NewStarter は新しい Starter を作成します。
func NewStarter(jobLocator registry.JobLocator, jobLauncher joblauncher.JobLauncher, jobs *builder.JobBuilderFactory, steps *builder.StepBuilderFactory) *Starter {
	return &Starter{
		jobLocator:  jobLocator,
		jobLauncher: jobLauncher,
		jobs:        jobs,
		steps:       steps,
		tracer:      otel.Tracer("adhoc-starter"),
	}
}

// Start はジョブカタログに登録されたジョブを起動します。
// ジョブ名を解決できない場合は *JobResolutionError を返し、JobLauncher は呼び出しません。
func (s *Starter) Start(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error) {
	job, err := s.jobLocator.GetJob(jobName)
	if err != nil {
		logger.Errorf("Job '%s' をジョブカタログから解決できませんでした: %v", jobName, err)
		return nil, &JobResolutionError{JobName: jobName, Err: err}
	}
	return s.StartJob(ctx, job, params)
}

// StartAction は action を実行する 1 ステップのジョブを組み立てて起動します。
// ジョブには run.id の JobParametersIncrementer が設定され、ステップは完了済みでも再実行されます。
func (s *Starter) StartAction(ctx context.Context, jobName string, action Action, params core.JobParameters) (*core.JobExecution, error) {
	step := s.steps.Get(StepName).
		AllowStartIfComplete(true).
		Tasklet(newActionTasklet(action, params)).
		Build()
	job := s.jobs.Get(jobName).
		Incrementer(incrementer.NewRunIDIncrementer(incrementer.DefaultRunIDKey)).
		Flow(step).
		End().
		Build()
	return s.StartJob(ctx, job, params)
}

// StartJob は組み立て済みのジョブを起動します。
// JobLauncher がエラーを返した場合は *JobLaunchError を返し、JobExecution は返しません。
// 成功時は JobLauncher が返した JobExecution をそのまま返します。
func (s *Starter) StartJob(ctx context.Context, job core.Job, params core.JobParameters) (*core.JobExecution, error) {
	jobName := job.JobName()

	ctx, span := s.tracer.Start(ctx, "adhoc.StartJob", trace.WithAttributes(attribute.String("job.name", jobName)))
	defer span.End()

	logger.Infof("Starting job %s", jobName)
	execution, err := s.jobLauncher.Run(ctx, job, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Errorf("Job '%s' の起動に失敗しました: %v", jobName, err)
		return nil, &JobLaunchError{JobName: jobName, Err: err}
	}
	if execution != nil {
		span.SetAttributes(attribute.String("job.execution.id", execution.ID))
	}
	return execution, nil
}
