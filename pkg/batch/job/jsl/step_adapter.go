package jsl

import (
	"fmt"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/builder"
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/incrementer"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/registry"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// TaskletBuilder は JSL の tasklet.properties から core.Tasklet を生成するための関数型です。
type TaskletBuilder func(properties map[string]string) (core.Tasklet, error)

// Components は JSL の ref から解決されるコンポーネントの集合です。
type Components struct {
	Tasklets      map[string]TaskletBuilder
	JobListeners  map[string]core.JobExecutionListener
	StepListeners map[string]core.StepExecutionListener
}

// NewComponents は空の Components を作成します。
func NewComponents() *Components {
	return &Components{
		Tasklets:      make(map[string]TaskletBuilder),
		JobListeners:  make(map[string]core.JobExecutionListener),
		StepListeners: make(map[string]core.StepExecutionListener),
	}
}

// RegisterTasklet は TaskletBuilder を登録します。
func (c *Components) RegisterTasklet(ref string, b TaskletBuilder) {
	c.Tasklets[ref] = b
	logger.Debugf("JSL: Tasklet ビルダー '%s' を登録しました。", ref)
}

// BuildJob は JSL のジョブ定義を builder で組み立てます。
func BuildJob(def Job, components *Components, jobs *builder.JobBuilderFactory, steps *builder.StepBuilderFactory) (core.Job, error) {
	inc, err := incrementer.New(def.Incrementer.Ref, def.Incrementer.Properties)
	if err != nil {
		return nil, exception.NewBatchErrorf("jsl", "ジョブ '%s' の incrementer を解決できません", def.Name, err)
	}

	jb := jobs.Get(def.Name)
	if inc != nil {
		jb.Incrementer(inc)
	}
	if len(def.Parameters.Required) > 0 || len(def.Parameters.Optional) > 0 {
		jb.Validator(core.NewDefaultJobParametersValidator(def.Parameters.Required, def.Parameters.Optional))
	}
	if !def.IsRestartable() {
		jb.PreventRestart()
	}
	for _, ref := range def.Listeners {
		l, ok := components.JobListeners[ref.Ref]
		if !ok {
			return nil, exception.NewBatchErrorf("jsl", "ジョブ '%s' の JobExecutionListener '%s' が登録されていません", def.Name, ref.Ref)
		}
		jb.Listener(l)
	}

	var flow *builder.FlowBuilder
	for _, s := range def.Steps {
		built, err := buildStep(def.Name, s, components, steps)
		if err != nil {
			return nil, err
		}
		if flow == nil {
			flow = jb.Flow(built)
		} else {
			flow.Next(built)
		}
	}
	if flow == nil {
		return nil, exception.NewBatchErrorf("jsl", "ジョブ '%s' にステップがありません", def.Name)
	}
	return flow.End().Build(), nil
}

func buildStep(jobName string, def Step, components *Components, steps *builder.StepBuilderFactory) (core.Step, error) {
	tb, ok := components.Tasklets[def.Tasklet.Ref]
	if !ok {
		return nil, exception.NewBatchErrorf("jsl", "ジョブ '%s' のステップ '%s': Tasklet '%s' が登録されていません", jobName, def.ID, def.Tasklet.Ref)
	}
	tasklet, err := tb(def.Tasklet.Properties)
	if err != nil {
		return nil, exception.NewBatchErrorf("jsl", "ジョブ '%s' のステップ '%s': Tasklet '%s' の生成に失敗しました", jobName, def.ID, def.Tasklet.Ref, err)
	}

	sb := steps.Get(def.ID).AllowStartIfComplete(def.AllowStartIfComplete).StartLimit(def.StartLimit)
	for _, ref := range def.Listeners {
		l, ok := components.StepListeners[ref.Ref]
		if !ok {
			return nil, exception.NewBatchErrorf("jsl", "ジョブ '%s' のステップ '%s': StepExecutionListener '%s' が登録されていません", jobName, def.ID, ref.Ref)
		}
		sb.Listener(l)
	}
	return sb.Tasklet(tasklet).Build(), nil
}

// RegisterAll は全てのジョブ定義を組み立てて registry に登録します。
func RegisterAll(defs []Job, components *Components, reg registry.JobRegistry, jobs *builder.JobBuilderFactory, steps *builder.StepBuilderFactory) error {
	for _, def := range defs {
		job, err := BuildJob(def, components, jobs, steps)
		if err != nil {
			return err
		}
		if err := reg.Register(job); err != nil {
			return fmt.Errorf("JSL ジョブ '%s' の登録に失敗しました: %w", def.Name, err)
		}
		logger.Infof("JSL ジョブ '%s' をジョブカタログに登録しました。", def.Name)
	}
	return nil
}
