package runner

import (
	"context"
	"fmt"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/job"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// SimpleJob は登録された順にステップを実行する core.Job の実装です。
// 最初に失敗したステップでフローを打ち切り、ジョブを FAILED にします。
type SimpleJob struct {
	name          string
	steps         []core.Step
	incrementer   core.JobParametersIncrementer
	validator     core.JobParametersValidator
	jobListeners  []core.JobExecutionListener
	restartable   bool
	jobRepository job.StepExecution
}

var _ core.Job = (*SimpleJob)(nil)

// Option は SimpleJob の任意設定です。
type Option func(*SimpleJob)

// WithIncrementer は JobParametersIncrementer を設定します。
func WithIncrementer(incrementer core.JobParametersIncrementer) Option {
	return func(j *SimpleJob) { j.incrementer = incrementer }
}

// WithValidator は JobParametersValidator を設定します。
func WithValidator(validator core.JobParametersValidator) Option {
	return func(j *SimpleJob) { j.validator = validator }
}

// WithListeners は JobExecutionListener を追加します。
func WithListeners(listeners ...core.JobExecutionListener) Option {
	return func(j *SimpleJob) { j.jobListeners = append(j.jobListeners, listeners...) }
}

// WithRestartable は失敗・停止した JobInstance を再実行できるかどうかを設定します。既定は true です。
func WithRestartable(restartable bool) Option {
	return func(j *SimpleJob) { j.restartable = restartable }
}

// NewSimpleJob は新しい SimpleJob のインスタンスを作成します。
func NewSimpleJob(name string, steps []core.Step, jobRepository job.StepExecution, opts ...Option) *SimpleJob {
	j := &SimpleJob{
		name:          name,
		steps:         append([]core.Step(nil), steps...),
		restartable:   true,
		jobRepository: jobRepository,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// JobName はジョブ名を返します。
func (j *SimpleJob) JobName() string {
	return j.name
}

// Steps は実行順のステップのコピーを返します。
func (j *SimpleJob) Steps() []core.Step {
	return append([]core.Step(nil), j.steps...)
}

// JobParametersIncrementer は設定された JobParametersIncrementer を返します。
func (j *SimpleJob) JobParametersIncrementer() core.JobParametersIncrementer {
	return j.incrementer
}

// IsRestartable は JobInstance を再実行できるかどうかを返します。
func (j *SimpleJob) IsRestartable() bool {
	return j.restartable
}

// ValidateParameters は JobParametersValidator が設定されている場合にパラメータを検証します。
func (j *SimpleJob) ValidateParameters(params core.JobParameters) error {
	if j.validator == nil {
		return nil
	}
	logger.Debugf("ジョブ '%s': JobParameters のバリデーションを実行します。Parameters: %s", j.name, params)
	return j.validator.Validate(params)
}

func (j *SimpleJob) notifyBeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
}

func (j *SimpleJob) notifyAfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}
}

// Run はステップを順に実行し、結果を jobExecution に記録します。
// ステップの失敗は jobExecution の Failures と Status に反映し、エラーとしては返しません。
// 戻り値のエラーは StepExecution の永続化に失敗した場合のみです。
func (j *SimpleJob) Run(ctx context.Context, jobExecution *core.JobExecution, jobParameters core.JobParameters) error {
	logger.Infof("ジョブ '%s' (Execution ID: %s) を開始します。", j.name, jobExecution.ID)

	j.notifyBeforeJob(ctx, jobExecution)
	defer func() {
		j.notifyAfterJob(ctx, jobExecution)
		logger.Infof("ジョブ '%s' (Execution ID: %s) が終了しました。最終ステータス: %s, 終了ステータス: %s",
			j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	}()

	if len(j.steps) == 0 {
		err := exception.NewBatchErrorf(j.name, "ジョブ '%s' にステップが定義されていません", j.name)
		logger.Errorf("%v", err)
		jobExecution.MarkAsFailed(err)
		return nil
	}

	for _, s := range j.steps {
		if ctx.Err() != nil {
			logger.Warnf("Context がキャンセルされたため、ジョブ '%s' の実行を中断します: %v", j.name, ctx.Err())
			jobExecution.MarkAsStopped()
			return nil
		}

		stepName := s.StepName()
		last, run, err := j.shouldStart(ctx, jobExecution, s)
		if err != nil {
			logger.Errorf("ジョブ '%s': ステップ '%s' を開始できません: %v", j.name, stepName, err)
			jobExecution.MarkAsFailed(err)
			return nil
		}
		if !run {
			logger.Infof("ジョブ '%s': ステップ '%s' は前回の実行で完了済みのためスキップします。", j.name, stepName)
			continue
		}

		stepExecution := core.NewStepExecution(jobExecution, stepName)
		// 未完了の前回実行があれば ExecutionContext を引き継ぐ
		if last != nil && last.Status != core.BatchStatusCompleted && len(last.ExecutionContext) > 0 {
			stepExecution.ExecutionContext = last.ExecutionContext.Copy()
		}
		if err := j.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
			logger.Errorf("ジョブ '%s': StepExecution (ID: %s) の保存に失敗しました: %v", j.name, stepExecution.ID, err)
			jobExecution.MarkAsFailed(err)
			return exception.NewBatchError(j.name, "StepExecution の保存エラー", err, false, false)
		}

		if err := s.Execute(ctx, jobExecution, stepExecution); err != nil {
			logger.Errorf("ジョブ '%s': ステップ '%s' が失敗しました: %v", j.name, stepName, err)
			jobExecution.MarkAsFailed(err)
			return nil
		}

		switch stepExecution.Status {
		case core.BatchStatusStopped:
			jobExecution.MarkAsStopped()
			return nil
		case core.BatchStatusFailed:
			jobExecution.MarkAsFailed(fmt.Errorf("ステップ '%s' が FAILED で終了しました", stepName))
			return nil
		}
	}

	jobExecution.MarkAsCompleted()
	return nil
}

// shouldStart は同じ JobInstance の過去の実行履歴からステップを開始すべきかを判定します。
// 前回の StepExecution があればそれも返します。
func (j *SimpleJob) shouldStart(ctx context.Context, jobExecution *core.JobExecution, s core.Step) (*core.StepExecution, bool, error) {
	last, err := j.jobRepository.FindLastStepExecution(ctx, jobExecution.JobInstanceID, s.StepName())
	if err != nil {
		return nil, false, err
	}
	if last != nil && last.Status == core.BatchStatusCompleted && !s.IsAllowStartIfComplete() {
		return last, false, nil
	}

	if limit := s.StartLimit(); limit > 0 {
		count, err := j.jobRepository.CountStepExecutions(ctx, jobExecution.JobInstanceID, s.StepName())
		if err != nil {
			return last, false, err
		}
		if count >= limit {
			return last, false, fmt.Errorf("ステップ '%s' の開始回数が上限 (%d) に達しました: %w", s.StepName(), limit, exception.ErrStartLimitExceeded)
		}
	}
	return last, true, nil
}
