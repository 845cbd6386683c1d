package joboperator

import (
	"context"
	"fmt"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/joblauncher"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/registry"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/job"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// Stopper は実行中の JobExecution を停止できるランチャーです。
type Stopper interface {
	Stop(executionID string) error
}

// DefaultJobOperator は JobOperator インターフェースのデフォルト実装です。
// JobRepository を使用してバッチメタデータを管理し、ジョブの実行を調整します。
type DefaultJobOperator struct {
	jobRepository job.JobRepository
	jobLocator    registry.JobLocator
	jobLauncher   joblauncher.JobLauncher
}

var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator は新しい DefaultJobOperator のインスタンスを作成します。
func NewDefaultJobOperator(jobRepository job.JobRepository, jobLocator registry.JobLocator, jobLauncher joblauncher.JobLauncher) *DefaultJobOperator {
	return &DefaultJobOperator{
		jobRepository: jobRepository,
		jobLocator:    jobLocator,
		jobLauncher:   jobLauncher,
	}
}

// Start はジョブカタログのジョブを起動します。
func (o *DefaultJobOperator) Start(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error) {
	logger.Infof("JobOperator: Job '%s' を起動します。Parameters: %s", jobName, params)
	batchJob, err := o.jobLocator.GetJob(jobName)
	if err != nil {
		return nil, err
	}
	return o.jobLauncher.Run(ctx, batchJob, params)
}

// StartNextInstance は前回の JobInstance のパラメータから次のパラメータを生成してジョブを起動します。
func (o *DefaultJobOperator) StartNextInstance(ctx context.Context, jobName string) (*core.JobExecution, error) {
	batchJob, err := o.jobLocator.GetJob(jobName)
	if err != nil {
		return nil, err
	}
	inc := batchJob.JobParametersIncrementer()
	if inc == nil {
		return nil, exception.NewBatchErrorf("job_operator", "Job '%s' に JobParametersIncrementer が設定されていません", jobName)
	}

	previous := core.NewJobParameters()
	last, err := o.jobRepository.FindLatestJobInstance(ctx, jobName)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("Job '%s' の最新の JobInstance の検索に失敗しました", jobName), err, false, false)
	}
	if last != nil {
		previous = last.Parameters
	}
	next := inc.GetNext(previous)
	logger.Infof("JobOperator: Job '%s' の次のインスタンスを起動します。Parameters: %s", jobName, next)
	return o.jobLauncher.Run(ctx, batchJob, next)
}

// Restart は指定された JobExecution を同じパラメータで再実行します。
func (o *DefaultJobOperator) Restart(ctx context.Context, executionID string) (*core.JobExecution, error) {
	logger.Infof("JobOperator: Restart が呼び出されました。Execution ID: %s", executionID)

	prev, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	// JSR352 では FAILED または STOPPED 状態の JobExecution のみ再起動可能です。
	if prev.Status != core.BatchStatusFailed && prev.Status != core.BatchStatusStopped {
		return nil, exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) は再起動可能な状態ではありません (現在の状態: %s)", executionID, prev.Status, exception.ErrJobRestart)
	}

	batchJob, err := o.jobLocator.GetJob(prev.JobName)
	if err != nil {
		return nil, err
	}
	return o.jobLauncher.Run(ctx, batchJob, prev.Parameters)
}

// Stop は実行中の JobExecution を停止します。ランチャーが停止に対応していない場合はエラーを返します。
func (o *DefaultJobOperator) Stop(ctx context.Context, executionID string) error {
	je, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}
	if !je.Status.IsRunning() {
		return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) は実行中ではありません (現在の状態: %s)", executionID, je.Status, exception.ErrJobExecutionNotRunning)
	}
	stopper, ok := o.jobLauncher.(Stopper)
	if !ok {
		return exception.NewBatchErrorf("job_operator", "JobLauncher (%T) は停止操作に対応していません", o.jobLauncher)
	}
	return stopper.Stop(executionID)
}

// Abandon は終了済みの JobExecution を ABANDONED に更新します。
func (o *DefaultJobOperator) Abandon(ctx context.Context, executionID string) (*core.JobExecution, error) {
	je, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if je.Status.IsRunning() {
		return nil, exception.NewBatchErrorf("job_operator", "実行中の JobExecution (ID: %s) は放棄できません", executionID, exception.ErrJobExecutionAlreadyRunning)
	}
	je.Status = core.BatchStatusAbandoned
	je.ExitStatus = core.ExitStatusAbandoned
	if err := o.jobRepository.UpdateJobExecution(ctx, je); err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("JobExecution (ID: %s) の更新に失敗しました", executionID), err, false, false)
	}
	logger.Infof("JobOperator: JobExecution (ID: %s) を ABANDONED にしました。", executionID)
	return je, nil
}

// GetJobExecution は指定された ID の JobExecution を取得します。
func (o *DefaultJobOperator) GetJobExecution(ctx context.Context, executionID string) (*core.JobExecution, error) {
	return o.jobRepository.FindJobExecutionByID(ctx, executionID)
}

// GetJobExecutions は指定された JobInstance の全ての JobExecution を取得します。
func (o *DefaultJobOperator) GetJobExecutions(ctx context.Context, instanceID string) ([]*core.JobExecution, error) {
	inst, err := o.jobRepository.FindJobInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, exception.NewBatchErrorf("job_operator", "JobInstance (ID: %s) が見つかりません", instanceID)
	}
	return o.jobRepository.FindJobExecutionsByJobInstance(ctx, inst)
}

// GetJobNames はジョブカタログに登録されている全てのジョブ名を取得します。
func (o *DefaultJobOperator) GetJobNames() []string {
	return o.jobLocator.GetJobNames()
}
