package builder

import (
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/job"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/step"
)

// StepBuilderFactory は JobRepository と既定の StepExecutionListener を共有する StepBuilder を生成します。
type StepBuilderFactory struct {
	jobRepository job.StepExecution
	listeners     []core.StepExecutionListener
}

// NewStepBuilderFactory は新しい StepBuilderFactory を作成します。
func NewStepBuilderFactory(jobRepository job.StepExecution, listeners ...core.StepExecutionListener) *StepBuilderFactory {
	return &StepBuilderFactory{jobRepository: jobRepository, listeners: listeners}
}

// Get は指定された名前のステップを組み立てる StepBuilder を返します。
func (f *StepBuilderFactory) Get(name string) *StepBuilder {
	return &StepBuilder{
		name:          name,
		jobRepository: f.jobRepository,
		listeners:     append([]core.StepExecutionListener(nil), f.listeners...),
	}
}

// StepBuilder はステップの共通設定を保持します。
type StepBuilder struct {
	name                 string
	jobRepository        job.StepExecution
	listeners            []core.StepExecutionListener
	allowStartIfComplete bool
	startLimit           int
}

// AllowStartIfComplete は同じ JobInstance で完了済みでもステップを再実行するかどうかを設定します。
func (b *StepBuilder) AllowStartIfComplete(allow bool) *StepBuilder {
	b.allowStartIfComplete = allow
	return b
}

// StartLimit はステップの開始回数の上限を設定します。
func (b *StepBuilder) StartLimit(limit int) *StepBuilder {
	b.startLimit = limit
	return b
}

// Listener は StepExecutionListener を追加します。
func (b *StepBuilder) Listener(listener core.StepExecutionListener) *StepBuilder {
	b.listeners = append(b.listeners, listener)
	return b
}

// Tasklet はステップ本体の Tasklet を指定します。
func (b *StepBuilder) Tasklet(tasklet core.Tasklet) *TaskletStepBuilder {
	return &TaskletStepBuilder{parent: b, tasklet: tasklet}
}

// TaskletStepBuilder は Tasklet ステップを生成します。
type TaskletStepBuilder struct {
	parent  *StepBuilder
	tasklet core.Tasklet
}

// Build は設定内容から TaskletStep を生成します。
func (b *TaskletStepBuilder) Build() *step.TaskletStep {
	p := b.parent
	return step.NewTaskletStep(p.name, b.tasklet, p.jobRepository,
		step.WithAllowStartIfComplete(p.allowStartIfComplete),
		step.WithStartLimit(p.startLimit),
		step.WithListeners(p.listeners...),
	)
}
