// Package memory はプロセス内でのみ有効な JobRepository の実装を提供します。
// database.type が memory の場合や、テストで使用します。
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/job"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

type stepRecord struct {
	jobInstanceID string
	execution     *core.StepExecution
}

// JobRepository はミューテックスで保護されたマップにメタデータを保持します。
// 保存と取得の際には値をコピーするため、呼び出し元のオブジェクトとは状態を共有しません。
type JobRepository struct {
	mu sync.RWMutex

	instances      map[string]*core.JobInstance
	instanceOrder  []string
	executions     map[string]*core.JobExecution
	executionOrder []string
	steps          map[string]*stepRecord
	stepOrder      []string
}

// NewJobRepository は空の JobRepository を作成します。
func NewJobRepository() *JobRepository {
	logger.Debugf("インメモリ JobRepository を生成しました。")
	return &JobRepository{
		instances:  make(map[string]*core.JobInstance),
		executions: make(map[string]*core.JobExecution),
		steps:      make(map[string]*stepRecord),
	}
}

var _ job.JobRepository = (*JobRepository)(nil)

// SaveJobInstance は新しい JobInstance を保存します。
func (r *JobRepository) SaveJobInstance(ctx context.Context, jobInstance *core.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[jobInstance.ID]; exists {
		return exception.NewBatchErrorf("memory_repository", "JobInstance (ID: %s) は既に存在します", jobInstance.ID)
	}
	cp := *jobInstance
	r.instances[cp.ID] = &cp
	r.instanceOrder = append(r.instanceOrder, cp.ID)
	return nil
}

// FindJobInstanceByJobNameAndParameters はジョブ名とパラメータのハッシュで JobInstance を検索します。
func (r *JobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error) {
	hash := params.Hash()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.instanceOrder {
		inst := r.instances[id]
		if inst.JobName == jobName && inst.ParametersHash == hash {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, nil
}

// FindJobInstanceByID は ID で JobInstance を検索します。
func (r *JobRepository) FindJobInstanceByID(ctx context.Context, instanceID string) (*core.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[instanceID]
	if !ok {
		return nil, nil
	}
	cp := *inst
	return &cp, nil
}

// FindLatestJobInstance はジョブ名で最後に作成された JobInstance を検索します。
func (r *JobRepository) FindLatestJobInstance(ctx context.Context, jobName string) (*core.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.instanceOrder) - 1; i >= 0; i-- {
		inst := r.instances[r.instanceOrder[i]]
		if inst.JobName == jobName {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, nil
}

// GetJobInstanceCount はジョブ名の JobInstance の数を返します。
func (r *JobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, inst := range r.instances {
		if inst.JobName == jobName {
			count++
		}
	}
	return count, nil
}

// GetJobNames は保存されている全てのジョブ名を返します。
func (r *JobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	names := []string{}
	for _, inst := range r.instances {
		if _, ok := seen[inst.JobName]; !ok {
			seen[inst.JobName] = struct{}{}
			names = append(names, inst.JobName)
		}
	}
	sort.Strings(names)
	return names, nil
}

// SaveJobExecution は新しい JobExecution を保存します。
func (r *JobRepository) SaveJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executions[jobExecution.ID]; exists {
		return exception.NewBatchErrorf("memory_repository", "JobExecution (ID: %s) は既に存在します", jobExecution.ID)
	}
	jobExecution.LastUpdated = time.Now()
	r.executions[jobExecution.ID] = copyJobExecution(jobExecution)
	r.executionOrder = append(r.executionOrder, jobExecution.ID)
	return nil
}

// UpdateJobExecution は JobExecution の状態を更新し、Version を 1 つ進めます。
func (r *JobRepository) UpdateJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executions[jobExecution.ID]; !exists {
		return fmt.Errorf("JobExecution (ID: %s) を更新できません: %w", jobExecution.ID, exception.ErrNoSuchJobExecution)
	}
	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()
	r.executions[jobExecution.ID] = copyJobExecution(jobExecution)
	return nil
}

// FindJobExecutionByID は ID で JobExecution を検索し、StepExecution を関連付けて返します。
func (r *JobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*core.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	je, ok := r.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("JobExecution (ID: %s) が見つかりません: %w", executionID, exception.ErrNoSuchJobExecution)
	}
	return r.loadJobExecution(je), nil
}

// FindLatestJobExecution は JobInstance の最新の JobExecution を検索します。
func (r *JobRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.executionOrder) - 1; i >= 0; i-- {
		je := r.executions[r.executionOrder[i]]
		if je.JobInstanceID == jobInstanceID {
			return r.loadJobExecution(je), nil
		}
	}
	return nil, nil
}

// FindJobExecutionsByJobInstance は JobInstance の全ての JobExecution を作成順に返します。
func (r *JobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *core.JobInstance) ([]*core.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*core.JobExecution
	for _, id := range r.executionOrder {
		if je := r.executions[id]; je.JobInstanceID == jobInstance.ID {
			out = append(out, r.loadJobExecution(je))
		}
	}
	return out, nil
}

// SaveStepExecution は新しい StepExecution を保存します。
func (r *JobRepository) SaveStepExecution(ctx context.Context, stepExecution *core.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[stepExecution.ID]; exists {
		return exception.NewBatchErrorf("memory_repository", "StepExecution (ID: %s) は既に存在します", stepExecution.ID)
	}
	instanceID := ""
	if stepExecution.JobExecution != nil {
		instanceID = stepExecution.JobExecution.JobInstanceID
	}
	stepExecution.LastUpdated = time.Now()
	r.steps[stepExecution.ID] = &stepRecord{jobInstanceID: instanceID, execution: copyStepExecution(stepExecution)}
	r.stepOrder = append(r.stepOrder, stepExecution.ID)
	return nil
}

// UpdateStepExecution は StepExecution の状態を更新し、Version を 1 つ進めます。
func (r *JobRepository) UpdateStepExecution(ctx context.Context, stepExecution *core.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.steps[stepExecution.ID]
	if !exists {
		return exception.NewBatchErrorf("memory_repository", "StepExecution (ID: %s) が見つかりません", stepExecution.ID)
	}
	stepExecution.Version++
	stepExecution.LastUpdated = time.Now()
	rec.execution = copyStepExecution(stepExecution)
	return nil
}

// FindStepExecutionsByJobExecutionID は JobExecution に属する StepExecution を作成順に返します。
func (r *JobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*core.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stepsOf(jobExecutionID), nil
}

// FindLastStepExecution は JobInstance 内で指定されたステップの最後の StepExecution を返します。
func (r *JobRepository) FindLastStepExecution(ctx context.Context, jobInstanceID, stepName string) (*core.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.stepOrder) - 1; i >= 0; i-- {
		rec := r.steps[r.stepOrder[i]]
		if rec.jobInstanceID == jobInstanceID && rec.execution.StepName == stepName {
			return copyStepExecution(rec.execution), nil
		}
	}
	return nil, nil
}

// CountStepExecutions は JobInstance 内で指定されたステップが保存された回数を返します。
func (r *JobRepository) CountStepExecutions(ctx context.Context, jobInstanceID, stepName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, rec := range r.steps {
		if rec.jobInstanceID == jobInstanceID && rec.execution.StepName == stepName {
			count++
		}
	}
	return count, nil
}

// Close は何もしません。
func (r *JobRepository) Close() error {
	return nil
}

// loadJobExecution は保存済みの JobExecution のコピーに StepExecution を関連付けます。呼び出し元でロックを保持してください。
func (r *JobRepository) loadJobExecution(stored *core.JobExecution) *core.JobExecution {
	je := copyJobExecution(stored)
	for _, se := range r.stepsOf(je.ID) {
		se.JobExecution = je
		je.StepExecutions = append(je.StepExecutions, se)
	}
	return je
}

func (r *JobRepository) stepsOf(jobExecutionID string) []*core.StepExecution {
	var out []*core.StepExecution
	for _, id := range r.stepOrder {
		rec := r.steps[id]
		if rec.execution.JobExecutionID() == jobExecutionID {
			out = append(out, copyStepExecution(rec.execution))
		}
	}
	return out
}

func copyJobExecution(src *core.JobExecution) *core.JobExecution {
	cp := *src
	cp.Failures = append([]error(nil), src.Failures...)
	cp.ExecutionContext = src.ExecutionContext.Copy()
	cp.StepExecutions = nil
	return &cp
}

// copyStepExecution は StepExecution をコピーします。JobExecution への参照は ID 解決のため ID のみを持つ値に置き換えます。
func copyStepExecution(src *core.StepExecution) *core.StepExecution {
	cp := *src
	cp.Failures = append([]error(nil), src.Failures...)
	cp.ExecutionContext = src.ExecutionContext.Copy()
	if src.JobExecution != nil {
		cp.JobExecution = &core.JobExecution{ID: src.JobExecution.ID, JobInstanceID: src.JobExecution.JobInstanceID, JobName: src.JobExecution.JobName}
	}
	return &cp
}
