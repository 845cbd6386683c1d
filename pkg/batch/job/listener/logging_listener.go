package listener

import (
	"context"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// LoggingJobListener はジョブの開始と終了をログに出力します。
type LoggingJobListener struct{}

// NewLoggingJobListener は LoggingJobListener を作成します。
func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

// BeforeJob はジョブ開始時のログを出力します。
func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	logger.Infof("Job '%s' (Execution ID: %s) が開始されました。Parameters: %s", jobExecution.JobName, jobExecution.ID, jobExecution.Parameters)
}

// AfterJob はジョブ終了時のログを出力します。失敗時はエラーも出力します。
func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	if jobExecution.Status == core.BatchStatusFailed {
		logger.Errorf("Job '%s' (Execution ID: %s) が失敗しました: %v", jobExecution.JobName, jobExecution.ID, jobExecution.Err())
		return
	}
	logger.Infof("Job '%s' (Execution ID: %s) が終了しました。Status: %s, ExitStatus: %s",
		jobExecution.JobName, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
}

// LoggingStepListener はステップの開始と終了をログに出力します。
type LoggingStepListener struct{}

// NewLoggingStepListener は LoggingStepListener を作成します。
func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

// BeforeStep はステップ開始時のログを出力します。
func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Debugf("Step '%s' (Execution ID: %s) が開始されました。", stepExecution.StepName, stepExecution.ID)
}

// AfterStep はステップ終了時のログを出力します。
func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Debugf("Step '%s' (Execution ID: %s) が終了しました。Status: %s, Commit: %d, Rollback: %d",
		stepExecution.StepName, stepExecution.ID, stepExecution.Status, stepExecution.CommitCount, stepExecution.RollbackCount)
}

var (
	_ core.JobExecutionListener  = (*LoggingJobListener)(nil)
	_ core.StepExecutionListener = (*LoggingStepListener)(nil)
)
