// Package tasklet はサンプルアプリケーションの JSL から参照される Tasklet を提供します。
package tasklet

import (
	"context"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// ExecutionContextWriterTasklet は指定されたキーと値で StepExecution の ExecutionContext にデータを書き込む Tasklet です。
type ExecutionContextWriterTasklet struct {
	key   string
	value string
}

// NewExecutionContextWriterTasklet は JSL のプロパティ key, value から ExecutionContextWriterTasklet を作成します。
func NewExecutionContextWriterTasklet(properties map[string]string) (core.Tasklet, error) {
	key := properties["key"]
	if key == "" {
		return nil, exception.NewBatchErrorf("execution_context_writer", "プロパティ 'key' が指定されていません")
	}
	// value が指定されていない場合は空文字列として扱う
	return &ExecutionContextWriterTasklet{key: key, value: properties["value"]}, nil
}

// Execute は ExecutionContext に値を書き込みます。
func (t *ExecutionContextWriterTasklet) Execute(ctx context.Context, contribution *core.StepContribution) (core.RepeatStatus, error) {
	if err := ctx.Err(); err != nil {
		return core.RepeatStatusFinished, err
	}
	se := contribution.StepExecution
	logger.Debugf("ExecutionContextWriterTasklet: キー '%s' に値 '%s' を書き込みます。", t.key, t.value)
	se.ExecutionContext.Put(t.key, t.value)
	logger.Infof("ExecutionContextWriterTasklet (Step: %s) が正常に完了しました。", se.StepName)
	return core.RepeatStatusFinished, nil
}

var _ core.Tasklet = (*ExecutionContextWriterTasklet)(nil)
