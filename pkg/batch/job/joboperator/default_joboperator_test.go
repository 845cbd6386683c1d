package joboperator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/builder"
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/incrementer"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/joblauncher"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/registry"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/memory"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
)

func newOperator(t *testing.T, tasklet core.TaskletFunc) (*DefaultJobOperator, *memory.JobRepository) {
	t.Helper()
	repo := memory.NewJobRepository()
	jobs, steps := builder.NewJobBuilderFactory(repo), builder.NewStepBuilderFactory(repo)
	reg := registry.NewMapJobRegistry()
	require.NoError(t, reg.Register(jobs.Get("nightly-export").
		Incrementer(incrementer.NewRunIDIncrementer("")).
		Flow(steps.Get("export").Tasklet(tasklet).Build()).
		End().Build()))
	require.NoError(t, reg.Register(jobs.Get("plain").
		Flow(steps.Get("step").Tasklet(tasklet).Build()).
		End().Build()))
	return NewDefaultJobOperator(repo, reg, joblauncher.NewSimpleJobLauncher(repo)), repo
}

func TestDefaultJobOperator_StartAndStartNextInstance(t *testing.T) {
	op, _ := newOperator(t, func(ctx context.Context, c *core.StepContribution) (core.RepeatStatus, error) {
		return core.RepeatStatusFinished, nil
	})
	ctx := context.Background()

	first, err := op.Start(ctx, "nightly-export", core.NewJobParametersBuilder().AddString("date", "2024-01-01").ToJobParameters())
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, first.Status)

	next, err := op.StartNextInstance(ctx, "nightly-export")
	require.NoError(t, err)
	runID, _ := next.Parameters.GetLong("run.id")
	assert.Equal(t, int64(2), runID)
	date, _ := next.Parameters.GetString("date")
	assert.Equal(t, "2024-01-01", date, "前回のパラメータを引き継ぐ")

	_, err = op.StartNextInstance(ctx, "plain")
	assert.Error(t, err)
	_, err = op.Start(ctx, "ghost-job", core.NewJobParameters())
	assert.ErrorIs(t, err, exception.ErrNoSuchJob)

	assert.Equal(t, []string{"nightly-export", "plain"}, op.GetJobNames())

	executions, err := op.GetJobExecutions(ctx, first.JobInstanceID)
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestDefaultJobOperator_RestartAndAbandon(t *testing.T) {
	failing := true
	op, _ := newOperator(t, func(ctx context.Context, c *core.StepContribution) (core.RepeatStatus, error) {
		if failing {
			return core.RepeatStatusFinished, errors.New("temporary")
		}
		return core.RepeatStatusFinished, nil
	})
	ctx := context.Background()

	failed, err := op.Start(ctx, "plain", core.NewJobParameters())
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusFailed, failed.Status)

	failing = false
	restarted, err := op.Restart(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, restarted.Status)
	assert.Equal(t, failed.JobInstanceID, restarted.JobInstanceID)

	_, err = op.Restart(ctx, restarted.ID)
	assert.ErrorIs(t, err, exception.ErrJobRestart)

	failing = true
	again, err := op.Start(ctx, "nightly-export", core.NewJobParameters())
	require.NoError(t, err)
	abandoned, err := op.Abandon(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusAbandoned, abandoned.Status)

	_, err = op.Start(ctx, "nightly-export", again.Parameters)
	assert.ErrorIs(t, err, exception.ErrJobInstanceAlreadyComplete)

	_, err = op.GetJobExecution(ctx, "missing")
	assert.ErrorIs(t, err, exception.ErrNoSuchJobExecution)
	assert.ErrorIs(t, op.Stop(ctx, failed.ID), exception.ErrJobExecutionNotRunning)
}
