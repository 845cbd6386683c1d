// Package registry はジョブ名から core.Job を解決するジョブカタログを提供します。
package registry

import (
	"fmt"
	"sort"
	"sync"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// JobLocator はジョブ名から core.Job を解決します。
type JobLocator interface {
	// GetJob は登録済みのジョブを返します。
	// 登録されていない場合は exception.ErrNoSuchJob をラップしたエラーを返します。
	GetJob(name string) (core.Job, error)
	// GetJobNames は登録済みのジョブ名をソート済みで返します。
	GetJobNames() []string
}

// JobRegistry はジョブの登録・解除ができる JobLocator です。
type JobRegistry interface {
	JobLocator
	Register(job core.Job) error
	Unregister(name string)
}

// MapJobRegistry はマップでジョブを保持する JobRegistry の実装です。並行利用に対して安全です。
type MapJobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]core.Job
}

var _ JobRegistry = (*MapJobRegistry)(nil)

// NewMapJobRegistry は空の MapJobRegistry を作成します。
func NewMapJobRegistry() *MapJobRegistry {
	return &MapJobRegistry{jobs: make(map[string]core.Job)}
}

// Register はジョブをジョブ名で登録します。同名のジョブが既にある場合は exception.ErrDuplicateJob を返します。
func (r *MapJobRegistry) Register(job core.Job) error {
	name := job.JobName()
	if name == "" {
		return exception.NewBatchErrorf("job_registry", "ジョブ名が空のジョブは登録できません")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("Job '%s' は既に登録されています: %w", name, exception.ErrDuplicateJob)
	}
	r.jobs[name] = job
	logger.Debugf("JobRegistry: Job '%s' を登録しました。", name)
	return nil
}

// Unregister はジョブの登録を解除します。
func (r *MapJobRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, name)
	logger.Debugf("JobRegistry: Job '%s' の登録を解除しました。", name)
}

// GetJob は登録済みのジョブを返します。
func (r *MapJobRegistry) GetJob(name string) (core.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[name]
	if !ok {
		return nil, exception.NewBatchErrorf("job_registry", "Job '%s' は登録されていません", name, exception.ErrNoSuchJob)
	}
	return job, nil
}

// GetJobNames は登録済みのジョブ名をソート済みで返します。
func (r *MapJobRegistry) GetJobNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
