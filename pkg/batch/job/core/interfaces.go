package core

import (
	"context"
)

// Job は実行可能なバッチジョブのインターフェースです。
type Job interface {
	// Run はジョブの処理を実行します。
	// ステップの失敗は jobExecution に記録され、戻り値のエラーは基盤側の異常 (永続化失敗など) のみを表します。
	Run(ctx context.Context, jobExecution *JobExecution, jobParameters JobParameters) error
	JobName() string
	// JobParametersIncrementer は起動ごとに JobParameters を進めるインクリメンタを返します。未設定の場合は nil です。
	JobParametersIncrementer() JobParametersIncrementer
	ValidateParameters(params JobParameters) error
	IsRestartable() bool
}

// Step はジョブ内で実行される単一のステップのインターフェースです。
type Step interface {
	Execute(ctx context.Context, jobExecution *JobExecution, stepExecution *StepExecution) error
	StepName() string
	// IsAllowStartIfComplete は同じ JobInstance で既に完了したステップでも再実行するかどうかを返します。
	IsAllowStartIfComplete() bool
	// StartLimit は同じ JobInstance 内でこのステップを開始できる回数の上限です。0 以下は無制限です。
	StartLimit() int
}

// Tasklet は単一の操作を実行するステップ本体のインターフェースです。
// RepeatStatusContinuable を返す限り、TaskletStep は Execute を繰り返し呼び出します。
type Tasklet interface {
	Execute(ctx context.Context, contribution *StepContribution) (RepeatStatus, error)
}

// TaskletFunc は関数を Tasklet として扱うためのアダプタです。
type TaskletFunc func(ctx context.Context, contribution *StepContribution) (RepeatStatus, error)

// Execute は f(ctx, contribution) を呼び出します。
func (f TaskletFunc) Execute(ctx context.Context, contribution *StepContribution) (RepeatStatus, error) {
	return f(ctx, contribution)
}

// JobExecutionListener はジョブ実行イベントを処理するためのインターフェースです。
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *JobExecution)
	AfterJob(ctx context.Context, jobExecution *JobExecution)
}

// StepExecutionListener はステップ実行イベントを処理するためのインターフェースです。
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *StepExecution)
	AfterStep(ctx context.Context, stepExecution *StepExecution)
}

// JobParametersIncrementer は JobParameters を自動的にインクリメントするためのインターフェースです。
type JobParametersIncrementer interface {
	// GetNext は前回の JobParameters (初回は空) から次回の JobParameters を生成します。
	GetNext(params JobParameters) JobParameters
}

// JobParametersValidator は起動前に JobParameters を検証するためのインターフェースです。
type JobParametersValidator interface {
	Validate(params JobParameters) error
}
