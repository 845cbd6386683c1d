package adhoc

import (
	"context"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
)

// Action はアドホックジョブとして実行する任意の処理です。
type Action func(ctx context.Context, params core.JobParameters) error

// actionTasklet は Action を core.Tasklet として実行します。
// パラメータは生成時に固定され、実行のたびに同じ値で Action を 1 回呼び出します。
type actionTasklet struct {
	action Action
	params core.JobParameters
}

func newActionTasklet(action Action, params core.JobParameters) *actionTasklet {
	return &actionTasklet{action: action, params: params}
}

// Execute は Action を呼び出します。Action のエラーはそのまま返します。
func (t *actionTasklet) Execute(ctx context.Context, _ *core.StepContribution) (core.RepeatStatus, error) {
	return core.RepeatStatusFinished, t.action(ctx, t.params)
}
