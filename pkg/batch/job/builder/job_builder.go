// Package builder はジョブとステップを組み立てるための fluent なビルダーを提供します。
//
//	job := jobs.Get("cleanup").
//		Incrementer(incrementer.NewRunIDIncrementer("")).
//		Flow(steps.Get("step").Tasklet(t).Build()).
//		End().
//		Build()
package builder

import (
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/runner"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/job"
)

// JobBuilderFactory は JobRepository と既定の JobExecutionListener を共有する JobBuilder を生成します。
type JobBuilderFactory struct {
	jobRepository job.StepExecution
	listeners     []core.JobExecutionListener
}

// NewJobBuilderFactory は新しい JobBuilderFactory を作成します。
// listeners は生成される全てのジョブに登録されます。
func NewJobBuilderFactory(jobRepository job.StepExecution, listeners ...core.JobExecutionListener) *JobBuilderFactory {
	return &JobBuilderFactory{jobRepository: jobRepository, listeners: listeners}
}

// Get は指定された名前のジョブを組み立てる JobBuilder を返します。
func (f *JobBuilderFactory) Get(name string) *JobBuilder {
	return &JobBuilder{
		name:          name,
		jobRepository: f.jobRepository,
		listeners:     append([]core.JobExecutionListener(nil), f.listeners...),
		restartable:   true,
	}
}

// JobBuilder はジョブ全体の設定を保持します。
type JobBuilder struct {
	name          string
	jobRepository job.StepExecution
	incrementer   core.JobParametersIncrementer
	validator     core.JobParametersValidator
	listeners     []core.JobExecutionListener
	restartable   bool
}

// Incrementer は JobParametersIncrementer を設定します。
func (b *JobBuilder) Incrementer(incrementer core.JobParametersIncrementer) *JobBuilder {
	b.incrementer = incrementer
	return b
}

// Validator は JobParametersValidator を設定します。
func (b *JobBuilder) Validator(validator core.JobParametersValidator) *JobBuilder {
	b.validator = validator
	return b
}

// Listener は JobExecutionListener を追加します。
func (b *JobBuilder) Listener(listener core.JobExecutionListener) *JobBuilder {
	b.listeners = append(b.listeners, listener)
	return b
}

// PreventRestart は失敗した JobInstance の再実行を禁止します。
func (b *JobBuilder) PreventRestart() *JobBuilder {
	b.restartable = false
	return b
}

// Flow は最初のステップを指定してフローの組み立てを開始します。
func (b *JobBuilder) Flow(first core.Step) *FlowBuilder {
	return &FlowBuilder{parent: b, steps: []core.Step{first}}
}

// Start は Flow の別名です。
func (b *JobBuilder) Start(first core.Step) *FlowBuilder {
	return b.Flow(first)
}

// FlowBuilder は順次実行するステップを保持します。
type FlowBuilder struct {
	parent *JobBuilder
	steps  []core.Step
}

// Next は次に実行するステップを追加します。
func (f *FlowBuilder) Next(next core.Step) *FlowBuilder {
	f.steps = append(f.steps, next)
	return f
}

// End はフローを終端し、ジョブを生成できる FlowJobBuilder を返します。
func (f *FlowBuilder) End() *FlowJobBuilder {
	return &FlowJobBuilder{parent: f.parent, steps: append([]core.Step(nil), f.steps...)}
}

// FlowJobBuilder は終端済みのフローからジョブを生成します。
type FlowJobBuilder struct {
	parent *JobBuilder
	steps  []core.Step
}

// Build は設定内容から SimpleJob を生成します。
func (b *FlowJobBuilder) Build() *runner.SimpleJob {
	p := b.parent
	opts := []runner.Option{
		runner.WithRestartable(p.restartable),
		runner.WithListeners(p.listeners...),
	}
	if p.incrementer != nil {
		opts = append(opts, runner.WithIncrementer(p.incrementer))
	}
	if p.validator != nil {
		opts = append(opts, runner.WithValidator(p.validator))
	}
	return runner.NewSimpleJob(p.name, b.steps, p.jobRepository, opts...)
}
