package sql_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/database"
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	sqlrepo "github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/sql"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	serialization "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/serialization"
)

var (
	instanceCols  = []string{"id", "job_name", "job_parameters", "parameters_hash", "create_time", "version"}
	executionCols = []string{"id", "job_instance_id", "job_name", "job_parameters", "status", "exit_status", "start_time", "end_time", "create_time", "last_updated", "version", "failures", "execution_context"}
	stepCols      = []string{"id", "job_execution_id", "job_instance_id", "job_name", "step_name", "status", "exit_status", "start_time", "end_time", "commit_count", "rollback_count", "failures", "execution_context", "last_updated", "version"}
)

func newRepo(t *testing.T, dialect database.Dialect) (*sqlrepo.SQLJobRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlrepo.NewSQLJobRepository(database.NewSQLDBAdapter(db, dialect)), mock
}

func TestSaveJobInstance_RebindsForPostgres(t *testing.T) {
	repo, mock := newRepo(t, database.DialectPostgres)
	params := core.NewJobParametersBuilder().AddString("target", "/tmp").ToJobParameters()
	inst := core.NewJobInstance("cleanupJob", params)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO batch_job_instance (id, job_name, job_parameters, parameters_hash, create_time, version) VALUES ($1, $2, $3, $4, $5, $6)")).
		WithArgs(inst.ID, "cleanupJob", sqlmock.AnyArg(), inst.ParametersHash, sqlmock.AnyArg(), 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveJobInstance(context.Background(), inst))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindJobInstanceByJobNameAndParameters(t *testing.T) {
	repo, mock := newRepo(t, database.DialectMySQL)
	params := core.NewJobParametersBuilder().AddString("target", "/tmp").AddLong("run.id", 2).ToJobParameters()
	paramsJSON, err := serialization.MarshalJobParameters(params)
	require.NoError(t, err)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_job_instance WHERE job_name = ? AND parameters_hash = ?")).
		WithArgs("cleanupJob", params.Hash()).
		WillReturnRows(sqlmock.NewRows(instanceCols).AddRow("inst-1", "cleanupJob", string(paramsJSON), params.Hash(), created, 0))

	inst, err := repo.FindJobInstanceByJobNameAndParameters(context.Background(), "cleanupJob", params)
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "inst-1", inst.ID)
	assert.True(t, params.Equal(inst.Parameters))
	assert.Equal(t, params.Hash(), inst.ParametersHash)
	assert.True(t, created.Equal(inst.CreateTime))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindJobInstance_NotFoundReturnsNil(t *testing.T) {
	repo, mock := newRepo(t, database.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_job_instance WHERE job_name = $1 ORDER BY create_time DESC LIMIT 1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(instanceCols))
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_job_instance WHERE id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(instanceCols))

	inst, err := repo.FindLatestJobInstance(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, inst)
	inst, err = repo.FindJobInstanceByID(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, inst)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNamesAndCount(t *testing.T) {
	repo, mock := newRepo(t, database.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT job_name FROM batch_job_instance ORDER BY job_name")).
		WillReturnRows(sqlmock.NewRows([]string{"job_name"}).AddRow("a").AddRow("b"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM batch_job_instance WHERE job_name = $1")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	names, err := repo.GetJobNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	count, err := repo.GetJobInstanceCount(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAndUpdateJobExecution(t *testing.T) {
	repo, mock := newRepo(t, database.DialectPostgres)
	je := core.NewJobExecution("inst-1", "cleanupJob", core.NewJobParameters())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO batch_job_execution")).
		WithArgs(je.ID, "inst-1", "cleanupJob", sqlmock.AnyArg(), "STARTING", "UNKNOWN",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_job_execution")).
		WithArgs("FAILED", "FAILED", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 1, `["boom"]`, sqlmock.AnyArg(), je.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	je.MarkAsStarted()
	je.MarkAsFailed(errors.New("boom"))
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	assert.Equal(t, 1, je.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobExecution_MissingRow(t *testing.T) {
	repo, mock := newRepo(t, database.DialectPostgres)
	je := core.NewJobExecution("inst-1", "cleanupJob", core.NewJobParameters())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_job_execution")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateJobExecution(context.Background(), je)
	assert.ErrorIs(t, err, exception.ErrNoSuchJobExecution)
	assert.Equal(t, 0, je.Version)
}

func TestFindJobExecutionByID_AttachesSteps(t *testing.T) {
	repo, mock := newRepo(t, database.DialectPostgres)
	now := time.Now()
	params := core.NewJobParametersBuilder().AddLong("run.id", 1).ToJobParameters()
	paramsJSON, _ := serialization.MarshalJobParameters(params)

	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_job_execution WHERE id = $1")).
		WithArgs("exec-1").
		WillReturnRows(sqlmock.NewRows(executionCols).AddRow(
			"exec-1", "inst-1", "cleanupJob", string(paramsJSON), "COMPLETED", "COMPLETED",
			now, now, now, now, 2, "[]", `{"count":3}`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_step_execution WHERE job_execution_id = $1 ORDER BY create_time")).
		WithArgs("exec-1").
		WillReturnRows(sqlmock.NewRows(stepCols).AddRow(
			"step-1", "exec-1", "inst-1", "cleanupJob", "step", "COMPLETED", "COMPLETED",
			now, now, 1, 0, "[]", "{}", now, 1))

	je, err := repo.FindJobExecutionByID(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)
	assert.True(t, params.Equal(je.Parameters))
	count, ok := je.ExecutionContext.GetInt("count")
	assert.True(t, ok)
	assert.Equal(t, 3, count)
	assert.NoError(t, je.Err())

	require.Len(t, je.StepExecutions, 1)
	se := je.StepExecutions[0]
	assert.Equal(t, "step", se.StepName)
	assert.Same(t, je, se.JobExecution)
	assert.Equal(t, 1, se.CommitCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindJobExecutionByID_NotFound(t *testing.T) {
	repo, mock := newRepo(t, database.DialectPostgres)
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_job_execution WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(executionCols))

	_, err := repo.FindJobExecutionByID(context.Background(), "missing")
	assert.ErrorIs(t, err, exception.ErrNoSuchJobExecution)
}

func TestFindLatestJobExecution_NoneReturnsNil(t *testing.T) {
	repo, mock := newRepo(t, database.DialectPostgres)
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_job_execution WHERE job_instance_id = $1 ORDER BY create_time DESC LIMIT 1")).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows(executionCols))

	je, err := repo.FindLatestJobExecution(context.Background(), "inst-1")
	assert.NoError(t, err)
	assert.Nil(t, je)
}

func TestStepExecution_SaveFindCount(t *testing.T) {
	repo, mock := newRepo(t, database.DialectPostgres)
	je := core.NewJobExecution("inst-1", "cleanupJob", core.NewJobParameters())
	se := core.NewStepExecution(je, "step")
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO batch_step_execution")).
		WithArgs(se.ID, je.ID, "inst-1", "cleanupJob", "step", "STARTING", "EXECUTING",
			sqlmock.AnyArg(), sqlmock.AnyArg(), 0, 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_step_execution WHERE job_instance_id = $1 AND step_name = $2 ORDER BY create_time DESC LIMIT 1")).
		WithArgs("inst-1", "step").
		WillReturnRows(sqlmock.NewRows(stepCols).AddRow(
			se.ID, je.ID, "inst-1", "cleanupJob", "step", "FAILED", "FAILED",
			now, now, 0, 1, `["tasklet failed"]`, "{}", now, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM batch_step_execution WHERE job_instance_id = $1 AND step_name = $2")).
		WithArgs("inst-1", "step").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ctx := context.Background()
	require.NoError(t, repo.SaveStepExecution(ctx, se))

	last, err := repo.FindLastStepExecution(ctx, "inst-1", "step")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, core.BatchStatusFailed, last.Status)
	assert.Equal(t, je.ID, last.JobExecutionID())
	assert.Equal(t, "inst-1", last.JobExecution.JobInstanceID)
	require.Len(t, last.Failures, 1)
	assert.EqualError(t, last.Failures[0], "tasklet failed")

	count, err := repo.CountStepExecutions(ctx, "inst-1", "step")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveStepExecution_RequiresJobExecution(t *testing.T) {
	repo, _ := newRepo(t, database.DialectPostgres)
	se := core.NewStepExecution(nil, "orphan")

	assert.Error(t, repo.SaveStepExecution(context.Background(), se))
}

func TestClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	repo := sqlrepo.NewSQLJobRepository(database.NewSQLDBAdapter(db, database.DialectMySQL))
	assert.NoError(t, repo.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
