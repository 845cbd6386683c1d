package job

import (
	"context"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
)

// StepExecution は StepExecution の永続化と取得に関する操作を定義します。
type StepExecution interface {
	// SaveStepExecution は新しい StepExecution を永続化します。
	SaveStepExecution(ctx context.Context, stepExecution *core.StepExecution) error

	// UpdateStepExecution は既存の StepExecution の状態を更新します。
	UpdateStepExecution(ctx context.Context, stepExecution *core.StepExecution) error

	// FindStepExecutionsByJobExecutionID は指定された JobExecution に属する StepExecution を作成順に検索します。
	// 返される StepExecution の JobExecution は識別情報 (ID, JobInstanceID, JobName) のみを持ちます。
	FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*core.StepExecution, error)

	// FindLastStepExecution は JobInstance 内で指定されたステップの最後の StepExecution を検索します。
	// 該当が無い場合は (nil, nil) を返します。
	FindLastStepExecution(ctx context.Context, jobInstanceID, stepName string) (*core.StepExecution, error)

	// CountStepExecutions は JobInstance 内で指定されたステップが開始された回数を返します。
	CountStepExecutions(ctx context.Context, jobInstanceID, stepName string) (int, error)
}
