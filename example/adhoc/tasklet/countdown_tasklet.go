package tasklet

import (
	"context"
	"strconv"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// countdownKey は残り回数を保存する ExecutionContext のキーです。
const countdownKey = "countdown.remaining"

// CountdownTasklet はプロパティ count で指定された回数だけ繰り返し実行される Tasklet です。
// 残り回数は ExecutionContext に保存されるため、再起動時は続きから実行されます。
type CountdownTasklet struct {
	count int
}

// NewCountdownTasklet は JSL のプロパティ count (省略時は 3) から CountdownTasklet を作成します。
func NewCountdownTasklet(properties map[string]string) (core.Tasklet, error) {
	count := 3
	if raw, ok := properties["count"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, exception.NewBatchErrorf("countdown_tasklet", "プロパティ 'count' は 1 以上の整数で指定してください: %q", raw)
		}
		count = n
	}
	return &CountdownTasklet{count: count}, nil
}

// Execute は残り回数を 1 つ減らし、0 になるまで RepeatStatusContinuable を返します。
func (t *CountdownTasklet) Execute(ctx context.Context, contribution *core.StepContribution) (core.RepeatStatus, error) {
	if err := ctx.Err(); err != nil {
		logger.Warnf("CountdownTasklet: Context がキャンセルされたため中断します: %v", err)
		return core.RepeatStatusFinished, err
	}

	ec := contribution.StepExecution.ExecutionContext
	remaining, ok := ec.GetInt(countdownKey)
	if !ok {
		remaining = t.count
	}
	remaining--
	ec.Put(countdownKey, remaining)
	logger.Infof("CountdownTasklet: 残り %d 回", remaining)

	if remaining > 0 {
		return core.RepeatStatusContinuable, nil
	}
	return core.RepeatStatusFinished, nil
}

var _ core.Tasklet = (*CountdownTasklet)(nil)
