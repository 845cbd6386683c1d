package step

import (
	"context"
	"errors"
	"fmt"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/job"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// TaskletStep は Tasklet をラップし、core.Step インターフェースを実装します。
// JSR352 の Tasklet ステップに相当します。
type TaskletStep struct {
	name                 string
	tasklet              core.Tasklet
	jobRepository        job.StepExecution
	stepListeners        []core.StepExecutionListener
	allowStartIfComplete bool
	startLimit           int
}

var _ core.Step = (*TaskletStep)(nil)

// Option は TaskletStep の任意設定です。
type Option func(*TaskletStep)

// WithAllowStartIfComplete は完了済みのステップを再実行するかどうかを設定します。
func WithAllowStartIfComplete(allow bool) Option {
	return func(s *TaskletStep) { s.allowStartIfComplete = allow }
}

// WithStartLimit は同じ JobInstance 内でステップを開始できる回数の上限を設定します。
func WithStartLimit(limit int) Option {
	return func(s *TaskletStep) { s.startLimit = limit }
}

// WithListeners は StepExecutionListener を追加します。
func WithListeners(listeners ...core.StepExecutionListener) Option {
	return func(s *TaskletStep) { s.stepListeners = append(s.stepListeners, listeners...) }
}

// NewTaskletStep は新しい TaskletStep のインスタンスを作成します。
func NewTaskletStep(name string, tasklet core.Tasklet, jobRepository job.StepExecution, opts ...Option) *TaskletStep {
	s := &TaskletStep{
		name:          name,
		tasklet:       tasklet,
		jobRepository: jobRepository,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StepName はステップ名を返します。
func (s *TaskletStep) StepName() string {
	return s.name
}

// Tasklet はステップ本体の Tasklet を返します。
func (s *TaskletStep) Tasklet() core.Tasklet {
	return s.tasklet
}

// IsAllowStartIfComplete は完了済みでも再実行するかどうかを返します。
func (s *TaskletStep) IsAllowStartIfComplete() bool {
	return s.allowStartIfComplete
}

// StartLimit は開始回数の上限を返します。0 以下は無制限です。
func (s *TaskletStep) StartLimit() int {
	return s.startLimit
}

func (s *TaskletStep) notifyBeforeStep(ctx context.Context, stepExecution *core.StepExecution) {
	for _, l := range s.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}
}

func (s *TaskletStep) notifyAfterStep(ctx context.Context, stepExecution *core.StepExecution) {
	for _, l := range s.stepListeners {
		l.AfterStep(ctx, stepExecution)
	}
}

// Execute は Tasklet を RepeatStatusFinished が返るまで繰り返し実行します。
// Tasklet のエラーは stepExecution に記録した上で返します。
// コンテキストがキャンセルされた場合、ステップは STOPPED となりエラーは返しません。
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) (err error) {
	logger.Infof("Taskletステップ '%s' (Execution ID: %s) を開始します。", s.name, stepExecution.ID)

	stepExecution.MarkAsStarted()
	stepExecution.ExitStatus = core.ExitStatusExecuting
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		logger.Errorf("Taskletステップ '%s': StepExecution の更新に失敗しました: %v", s.name, err)
		stepExecution.MarkAsFailed(err)
		return exception.NewBatchError(s.name, "StepExecution の更新エラー", err, false, false)
	}

	s.notifyBeforeStep(ctx, stepExecution)

	defer func() {
		s.notifyAfterStep(ctx, stepExecution)
		// キャンセル後でも最終状態は永続化する
		if uerr := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); uerr != nil {
			logger.Errorf("Taskletステップ '%s': 最終状態の StepExecution 更新に失敗しました: %v", s.name, uerr)
			if err == nil {
				err = exception.NewBatchError(s.name, "StepExecution の更新エラー", uerr, false, false)
			}
		}
	}()

	contribution := core.NewStepContribution(stepExecution)
	for {
		if ctx.Err() != nil {
			logger.Warnf("Taskletステップ '%s': コンテキストがキャンセルされたため停止します: %v", s.name, ctx.Err())
			stepExecution.MarkAsStopped()
			return nil
		}

		status, terr := s.executeTasklet(ctx, contribution)
		if terr != nil {
			if errors.Is(terr, context.Canceled) && ctx.Err() != nil {
				logger.Warnf("Taskletステップ '%s': 実行中にキャンセルされました。", s.name)
				stepExecution.MarkAsStopped()
				return nil
			}
			logger.Errorf("Taskletステップ '%s' の実行中にエラーが発生しました: %v", s.name, terr)
			stepExecution.RollbackCount++
			stepExecution.MarkAsFailed(terr)
			return exception.NewBatchError(s.name, "Tasklet 実行エラー", terr, false, false)
		}
		stepExecution.CommitCount++

		if status != core.RepeatStatusContinuable {
			break
		}
		logger.Debugf("Taskletステップ '%s': Tasklet が %s を返したため再実行します。", s.name, status)
	}

	stepExecution.MarkAsCompleted()
	if contribution.ExitStatus != "" {
		stepExecution.ExitStatus = contribution.ExitStatus
	}
	logger.Infof("Taskletステップ '%s' が正常に完了しました。ExitStatus: %s", s.name, stepExecution.ExitStatus)
	return nil
}

// executeTasklet は Tasklet を 1 回実行します。panic はエラーに変換します。
func (s *TaskletStep) executeTasklet(ctx context.Context, contribution *core.StepContribution) (status core.RepeatStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tasklet panic: %v", r)
		}
	}()
	return s.tasklet.Execute(ctx, contribution)
}
