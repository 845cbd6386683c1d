package adhoc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/builder"
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/incrementer"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/joblauncher"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/registry"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/runner"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/memory"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/step"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
)

// MockJobLocator is a mock implementation of registry.JobLocator
type MockJobLocator struct {
	mock.Mock
}

func (m *MockJobLocator) GetJob(name string) (core.Job, error) {
	args := m.Called(name)
	job, _ := args.Get(0).(core.Job)
	return job, args.Error(1)
}

func (m *MockJobLocator) GetJobNames() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

// MockJobLauncher is a mock implementation of joblauncher.JobLauncher
type MockJobLauncher struct {
	mock.Mock
}

func (m *MockJobLauncher) Run(ctx context.Context, job core.Job, params core.JobParameters) (*core.JobExecution, error) {
	args := m.Called(ctx, job, params)
	execution, _ := args.Get(0).(*core.JobExecution)
	return execution, args.Error(1)
}

var (
	_ registry.JobLocator     = (*MockJobLocator)(nil)
	_ joblauncher.JobLauncher = (*MockJobLauncher)(nil)
)

func newStarter(locator registry.JobLocator, launcher joblauncher.JobLauncher) *Starter {
	repo := memory.NewJobRepository()
	return NewStarter(locator, launcher, builder.NewJobBuilderFactory(repo), builder.NewStepBuilderFactory(repo))
}

func catalogJob(name string) core.Job {
	return runner.NewSimpleJob(name, nil, memory.NewJobRepository())
}

func TestStarter_Start_LaunchesResolvedJob(t *testing.T) {
	job := catalogJob("nightly-export")
	params := core.NewJobParametersBuilder().AddString("date", "2024-01-01").ToJobParameters()
	handle := core.NewJobExecution("instance-1", "nightly-export", params)

	locator := new(MockJobLocator)
	locator.On("GetJob", "nightly-export").Return(job, nil).Once()
	launcher := new(MockJobLauncher)
	launcher.On("Run", mock.Anything, job, params).Return(handle, nil).Once()

	got, err := newStarter(locator, launcher).Start(context.Background(), "nightly-export", params)

	require.NoError(t, err)
	assert.Same(t, handle, got)
	locator.AssertExpectations(t)
	launcher.AssertExpectations(t)
	launcher.AssertNumberOfCalls(t, "Run", 1)
}

func TestStarter_Start_UnknownJobIsResolutionError(t *testing.T) {
	cause := exception.NewBatchErrorf("job_registry", "Job '%s' は登録されていません", "ghost-job", exception.ErrNoSuchJob)
	locator := new(MockJobLocator)
	locator.On("GetJob", "ghost-job").Return(nil, cause).Once()
	launcher := new(MockJobLauncher)

	got, err := newStarter(locator, launcher).Start(context.Background(), "ghost-job", core.NewJobParameters())

	assert.Nil(t, got)
	var resolutionErr *JobResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "ghost-job", resolutionErr.JobName)
	assert.Contains(t, err.Error(), "ghost-job")
	assert.ErrorIs(t, err, exception.ErrNoSuchJob)
	launcher.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestStarter_Start_WithRegistry(t *testing.T) {
	reg := registry.NewMapJobRegistry()
	job := catalogJob("nightly-export")
	require.NoError(t, reg.Register(job))
	params := core.NewJobParametersBuilder().AddString("date", "2024-01-01").ToJobParameters()
	handle := core.NewJobExecution("instance-1", "nightly-export", params)

	launcher := new(MockJobLauncher)
	launcher.On("Run", mock.Anything, job, params).Return(handle, nil).Once()
	starter := newStarter(reg, launcher)

	got, err := starter.Start(context.Background(), "nightly-export", params)
	require.NoError(t, err)
	assert.Same(t, handle, got)

	_, err = starter.Start(context.Background(), "ghost-job", core.NewJobParameters())
	var resolutionErr *JobResolutionError
	assert.ErrorAs(t, err, &resolutionErr)
	launcher.AssertNumberOfCalls(t, "Run", 1)
}

func TestStarter_StartAction_BuildsSingleStepJob(t *testing.T) {
	cases := []struct {
		name   string
		params core.JobParameters
	}{
		{"cleanup", core.NewJobParametersBuilder().AddString("target", "/tmp").ToJobParameters()},
		{"", core.NewJobParameters()},
		{"with-run-id", core.NewJobParametersBuilder().AddLong("run.id", 10).AddBool("dryRun", true).ToJobParameters()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var captured core.Job
			launcher := new(MockJobLauncher)
			launcher.On("Run", mock.Anything, mock.Anything, tc.params).
				Run(func(args mock.Arguments) { captured = args.Get(1).(core.Job) }).
				Return(core.NewJobExecution("i", tc.name, tc.params), nil).Once()

			var calls int
			var received core.JobParameters
			action := func(ctx context.Context, params core.JobParameters) error {
				calls++
				received = params
				return nil
			}

			_, err := newStarter(new(MockJobLocator), launcher).StartAction(context.Background(), tc.name, action, tc.params)
			require.NoError(t, err)
			launcher.AssertExpectations(t)

			job, ok := captured.(*runner.SimpleJob)
			require.True(t, ok)
			assert.Equal(t, tc.name, job.JobName())
			assert.IsType(t, &incrementer.RunIDIncrementer{}, job.JobParametersIncrementer())

			steps := job.Steps()
			require.Len(t, steps, 1)
			assert.Equal(t, StepName, steps[0].StepName())
			assert.True(t, steps[0].IsAllowStartIfComplete())

			// 組み立て時点では action は呼ばれない
			assert.Equal(t, 0, calls)

			taskletStep, ok := steps[0].(*step.TaskletStep)
			require.True(t, ok)
			status, err := taskletStep.Tasklet().Execute(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, core.RepeatStatusFinished, status)
			assert.Equal(t, 1, calls)
			assert.True(t, tc.params.Equal(received))
			assert.Equal(t, tc.params.Keys(), received.Keys())
		})
	}
}

func TestStarter_LaunchErrorIsWrapped(t *testing.T) {
	cause := exception.NewBatchErrorf("job_launcher", "Job '%s' の JobExecution は実行中です", "nightly-export", exception.ErrJobExecutionAlreadyRunning)
	params := core.NewJobParametersBuilder().AddString("date", "2024-01-01").ToJobParameters()
	job := catalogJob("nightly-export")

	locator := new(MockJobLocator)
	locator.On("GetJob", "nightly-export").Return(job, nil)
	launcher := new(MockJobLauncher)
	launcher.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, cause)
	starter := newStarter(locator, launcher)

	calls := map[string]func() (*core.JobExecution, error){
		"Start": func() (*core.JobExecution, error) {
			return starter.Start(context.Background(), "nightly-export", params)
		},
		"StartAction": func() (*core.JobExecution, error) {
			return starter.StartAction(context.Background(), "nightly-export", func(context.Context, core.JobParameters) error { return nil }, params)
		},
		"StartJob": func() (*core.JobExecution, error) {
			return starter.StartJob(context.Background(), job, params)
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			got, err := call()
			assert.Nil(t, got)
			var launchErr *JobLaunchError
			require.ErrorAs(t, err, &launchErr)
			assert.Equal(t, "nightly-export", launchErr.JobName)
			assert.ErrorIs(t, err, cause)
			assert.ErrorIs(t, err, exception.ErrJobExecutionAlreadyRunning)
		})
	}
	launcher.AssertNumberOfCalls(t, "Run", 3)
}

func TestStarter_StartAction_FailingActionSurfacesOnExecution(t *testing.T) {
	repo := memory.NewJobRepository()
	starter := NewStarter(registry.NewMapJobRegistry(), joblauncher.NewSimpleJobLauncher(repo),
		builder.NewJobBuilderFactory(repo), builder.NewStepBuilderFactory(repo))

	consumerErr := errors.New("cannot remove /tmp")
	params := core.NewJobParametersBuilder().AddString("target", "/tmp").ToJobParameters()
	var calls int

	execution, err := starter.StartAction(context.Background(), "cleanup", func(ctx context.Context, p core.JobParameters) error {
		calls++
		return consumerErr
	}, params)

	require.NoError(t, err)
	require.NotNil(t, execution)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "cleanup", execution.JobName)
	assert.Equal(t, core.BatchStatusFailed, execution.Status)
	assert.ErrorIs(t, execution.Err(), consumerErr)
	require.Len(t, execution.StepExecutions, 1)
	assert.ErrorIs(t, errors.Join(execution.StepExecutions[0].Failures...), consumerErr)
}

func TestStarter_StartAction_RepeatedLaunchesDoNotCollide(t *testing.T) {
	repo := memory.NewJobRepository()
	starter := NewStarter(registry.NewMapJobRegistry(), joblauncher.NewSimpleJobLauncher(repo),
		builder.NewJobBuilderFactory(repo), builder.NewStepBuilderFactory(repo))
	params := core.NewJobParametersBuilder().AddString("target", "/tmp").ToJobParameters()
	noop := func(context.Context, core.JobParameters) error { return nil }

	first, err := starter.StartAction(context.Background(), "cleanup", noop, params)
	require.NoError(t, err)
	second, err := starter.StartAction(context.Background(), "cleanup", noop, params)
	require.NoError(t, err)

	assert.Equal(t, core.BatchStatusCompleted, first.Status)
	assert.Equal(t, core.BatchStatusCompleted, second.Status)
	assert.NotEqual(t, first.JobInstanceID, second.JobInstanceID)
	r1, _ := first.Parameters.GetLong("run.id")
	r2, _ := second.Parameters.GetLong("run.id")
	assert.Less(t, r1, r2)
}
