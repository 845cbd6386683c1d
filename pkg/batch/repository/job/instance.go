package job

import (
	"context"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
)

// JobInstance は JobInstance の永続化と取得に関する操作を定義します。
// Find 系のメソッドは、該当が無い場合に (nil, nil) を返します。
type JobInstance interface {
	// SaveJobInstance は新しい JobInstance を永続化します。
	SaveJobInstance(ctx context.Context, jobInstance *core.JobInstance) error

	// FindJobInstanceByJobNameAndParameters はジョブ名と識別パラメータのハッシュが一致する JobInstance を検索します。
	FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error)

	// FindJobInstanceByID は指定された ID の JobInstance を検索します。
	FindJobInstanceByID(ctx context.Context, instanceID string) (*core.JobInstance, error)

	// FindLatestJobInstance は指定されたジョブ名で最後に作成された JobInstance を検索します。
	FindLatestJobInstance(ctx context.Context, jobName string) (*core.JobInstance, error)

	// GetJobInstanceCount は指定されたジョブ名の JobInstance の数を返します。
	GetJobInstanceCount(ctx context.Context, jobName string) (int, error)

	// GetJobNames はリポジトリに存在する全てのジョブ名をソート済みで返します。
	GetJobNames(ctx context.Context) ([]string, error)
}
