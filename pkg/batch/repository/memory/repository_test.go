package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
)

func TestJobRepository_InstanceLookupByParameters(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()

	params := core.NewJobParametersBuilder().AddString("date", "2024-01-01").ToJobParameters()
	inst := core.NewJobInstance("nightly-export", params)
	require.NoError(t, repo.SaveJobInstance(ctx, inst))
	assert.Error(t, repo.SaveJobInstance(ctx, inst))

	same := core.NewJobParametersBuilder().AddString("date", "2024-01-01").AddNonIdentifyingString("note", "x").ToJobParameters()
	found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "nightly-export", same)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, inst.ID, found.ID)

	other := core.NewJobParametersBuilder().AddString("date", "2024-01-02").ToJobParameters()
	found, err = repo.FindJobInstanceByJobNameAndParameters(ctx, "nightly-export", other)
	require.NoError(t, err)
	assert.Nil(t, found)

	inst2 := core.NewJobInstance("nightly-export", other)
	require.NoError(t, repo.SaveJobInstance(ctx, inst2))
	require.NoError(t, repo.SaveJobInstance(ctx, core.NewJobInstance("cleanup", params)))

	latest, err := repo.FindLatestJobInstance(ctx, "nightly-export")
	require.NoError(t, err)
	assert.Equal(t, inst2.ID, latest.ID)

	count, err := repo.GetJobInstanceCount(ctx, "nightly-export")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	names, err := repo.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cleanup", "nightly-export"}, names)
}

func TestJobRepository_ExecutionsAreCopied(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()

	params := core.NewJobParameters()
	inst := core.NewJobInstance("cleanup", params)
	require.NoError(t, repo.SaveJobInstance(ctx, inst))

	je := core.NewJobExecution(inst.ID, inst.JobName, params)
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	je.MarkAsStarted()
	se := core.NewStepExecution(je, "step")
	require.NoError(t, repo.SaveStepExecution(ctx, se))

	// 保存後の変更はリポジトリに反映されない
	je.ExecutionContext.Put("dirty", true)
	loaded, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusStarting, loaded.Status)
	_, dirty := loaded.ExecutionContext.Get("dirty")
	assert.False(t, dirty)
	require.Len(t, loaded.StepExecutions, 1)
	assert.Same(t, loaded, loaded.StepExecutions[0].JobExecution)

	cause := errors.New("boom")
	se.MarkAsFailed(cause)
	require.NoError(t, repo.UpdateStepExecution(ctx, se))
	je.MarkAsFailed(cause)
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	assert.Equal(t, 1, je.Version)

	latest, err := repo.FindLatestJobExecution(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusFailed, latest.Status)
	assert.ErrorIs(t, latest.Err(), cause)

	last, err := repo.FindLastStepExecution(ctx, inst.ID, "step")
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusFailed, last.Status)

	n, err := repo.CountStepExecutions(ctx, inst.ID, "step")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := repo.FindJobExecutionsByJobInstance(ctx, inst)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestJobRepository_MissingExecution(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()

	_, err := repo.FindJobExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, exception.ErrNoSuchJobExecution)

	err = repo.UpdateJobExecution(ctx, core.NewJobExecution("i", "job", core.NewJobParameters()))
	assert.ErrorIs(t, err, exception.ErrNoSuchJobExecution)

	latest, err := repo.FindLatestJobExecution(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, latest)
}
