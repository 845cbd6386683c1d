package joboperator

import (
	"context"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
)

// JobOperator はバッチ実行の管理操作を行うためのインターフェースです。
// JSR352 の JobOperator に相当します。
type JobOperator interface {
	// Start はジョブカタログに登録されたジョブを JobParameters とともに起動します。
	Start(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error)

	// StartNextInstance は JobParametersIncrementer で次のパラメータを生成してジョブを起動します。
	StartNextInstance(ctx context.Context, jobName string) (*core.JobExecution, error)

	// Restart は FAILED または STOPPED の JobExecution を同じパラメータで再実行します。
	Restart(ctx context.Context, executionID string) (*core.JobExecution, error)

	// Stop は実行中の JobExecution を停止します。
	Stop(ctx context.Context, executionID string) error

	// Abandon は終了済みの JobExecution を ABANDONED にし、再実行できないようにします。
	Abandon(ctx context.Context, executionID string) (*core.JobExecution, error)

	// GetJobExecution は指定された ID の JobExecution を取得します。
	GetJobExecution(ctx context.Context, executionID string) (*core.JobExecution, error)

	// GetJobExecutions は指定された JobInstance に関連する全ての JobExecution を取得します。
	GetJobExecutions(ctx context.Context, instanceID string) ([]*core.JobExecution, error)

	// GetJobNames はジョブカタログに登録されている全てのジョブ名を取得します。
	GetJobNames() []string
}
