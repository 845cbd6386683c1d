package joblauncher

import (
	"context"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
)

// JobLauncher は Job を JobParameters とともに起動するためのインターフェースです。
// Spring Batchの JobLauncher に相当します。
type JobLauncher interface {
	// Run は指定された Job を JobParameters とともに起動し、JobExecution を返します。
	// ここで返されるエラーは起動処理自体のエラー (パラメータ不正、重複実行、永続化失敗など) です。
	// ジョブ自体の失敗は JobExecution の Status と Failures に記録されます。
	Run(ctx context.Context, job core.Job, params core.JobParameters) (*core.JobExecution, error)
}
