package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/database"
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/job"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
	serialization "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/serialization"
)

const executionColumns = "id, job_instance_id, job_name, job_parameters, status, exit_status, start_time, end_time, create_time, last_updated, version, failures, execution_context"

// SQLJobExecutionRepository は JobExecution インターフェースの SQL データベース実装です。
type SQLJobExecutionRepository struct {
	dbConnection database.DBConnection
	steps        *SQLStepExecutionRepository
}

// NewSQLJobExecutionRepository は新しい SQLJobExecutionRepository のインスタンスを作成します。
func NewSQLJobExecutionRepository(dbConn database.DBConnection) *SQLJobExecutionRepository {
	return &SQLJobExecutionRepository{dbConnection: dbConn}
}

// SetStepExecutionRepository は JobExecution の取得時に StepExecution を読み込むためのリポジトリを設定します。
func (r *SQLJobExecutionRepository) SetStepExecutionRepository(steps *SQLStepExecutionRepository) {
	r.steps = steps
}

// SaveJobExecution は新しい JobExecution をデータベースに保存します。
func (r *SQLJobExecutionRepository) SaveJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	paramsJSON, failuresJSON, ecJSON, err := marshalJobExecution(jobExecution)
	if err != nil {
		return err
	}
	jobExecution.LastUpdated = time.Now()

	query := r.dbConnection.Dialect().Rebind(
		"INSERT INTO batch_job_execution (" + executionColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	_, err = r.dbConnection.ExecContext(ctx, query,
		jobExecution.ID,
		jobExecution.JobInstanceID,
		jobExecution.JobName,
		nullString(paramsJSON),
		string(jobExecution.Status),
		string(jobExecution.ExitStatus),
		nullTime(jobExecution.StartTime),
		nullTime(jobExecution.EndTime),
		jobExecution.CreateTime,
		jobExecution.LastUpdated,
		jobExecution.Version,
		nullString(failuresJSON),
		nullString(ecJSON),
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の保存に失敗しました", jobExecution.ID), err, false, false)
	}

	logger.Debugf("JobExecution (ID: %s, JobName: %s) を保存しました。", jobExecution.ID, jobExecution.JobName)
	return nil
}

// UpdateJobExecution は JobExecution の状態を更新し、Version を 1 つ進めます。
func (r *SQLJobExecutionRepository) UpdateJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	_, failuresJSON, ecJSON, err := marshalJobExecution(jobExecution)
	if err != nil {
		return err
	}
	version := jobExecution.Version + 1
	lastUpdated := time.Now()

	query := r.dbConnection.Dialect().Rebind(`UPDATE batch_job_execution
SET status = ?, exit_status = ?, start_time = ?, end_time = ?, last_updated = ?, version = ?, failures = ?, execution_context = ?
WHERE id = ?`)
	res, err := r.dbConnection.ExecContext(ctx, query,
		string(jobExecution.Status),
		string(jobExecution.ExitStatus),
		nullTime(jobExecution.StartTime),
		nullTime(jobExecution.EndTime),
		lastUpdated,
		version,
		nullString(failuresJSON),
		nullString(ecJSON),
		jobExecution.ID,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の更新に失敗しました", jobExecution.ID), err, false, false)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("JobExecution (ID: %s) を更新できません: %w", jobExecution.ID, exception.ErrNoSuchJobExecution)
	}

	jobExecution.Version = version
	jobExecution.LastUpdated = lastUpdated
	logger.Debugf("JobExecution (ID: %s) を更新しました。Status: %s", jobExecution.ID, jobExecution.Status)
	return nil
}

// FindJobExecutionByID は指定された ID の JobExecution を関連する StepExecution と共に取得します。
func (r *SQLJobExecutionRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*core.JobExecution, error) {
	query := r.dbConnection.Dialect().Rebind(
		"SELECT " + executionColumns + " FROM batch_job_execution WHERE id = ?")
	je, err := scanJobExecution(r.dbConnection.QueryRowContext(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("JobExecution (ID: %s) が見つかりません: %w", executionID, exception.ErrNoSuchJobExecution)
		}
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の取得に失敗しました", executionID), err, false, false)
	}
	if err := r.attachSteps(ctx, je); err != nil {
		return nil, err
	}
	return je, nil
}

// FindLatestJobExecution は指定された JobInstance の最新の JobExecution を取得します。
func (r *SQLJobExecutionRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error) {
	query := r.dbConnection.Dialect().Rebind(
		"SELECT " + executionColumns + " FROM batch_job_execution WHERE job_instance_id = ? ORDER BY create_time DESC LIMIT 1")
	je, err := scanJobExecution(r.dbConnection.QueryRowContext(ctx, query, jobInstanceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の最新 JobExecution の取得に失敗しました", jobInstanceID), err, false, false)
	}
	if err := r.attachSteps(ctx, je); err != nil {
		return nil, err
	}
	return je, nil
}

// FindJobExecutionsByJobInstance は指定された JobInstance の全ての JobExecution を作成順に取得します。
func (r *SQLJobExecutionRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *core.JobInstance) ([]*core.JobExecution, error) {
	query := r.dbConnection.Dialect().Rebind(
		"SELECT " + executionColumns + " FROM batch_job_execution WHERE job_instance_id = ? ORDER BY create_time")
	rows, err := r.dbConnection.QueryContext(ctx, query, jobInstance.ID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の JobExecution 一覧の取得に失敗しました", jobInstance.ID), err, false, false)
	}
	defer rows.Close()

	var executions []*core.JobExecution
	for rows.Next() {
		je, err := scanJobExecution(rows)
		if err != nil {
			return nil, exception.NewBatchError(module, "JobExecution のスキャンに失敗しました", err, false, false)
		}
		executions = append(executions, je)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchError(module, "JobExecution 取得後の行処理中にエラーが発生しました", err, false, false)
	}
	// StepExecution の読み込みは rows を閉じてから行います。
	rows.Close()
	for _, je := range executions {
		if err := r.attachSteps(ctx, je); err != nil {
			return nil, err
		}
	}
	return executions, nil
}

func (r *SQLJobExecutionRepository) attachSteps(ctx context.Context, je *core.JobExecution) error {
	if r.steps == nil {
		return nil
	}
	steps, err := r.steps.FindStepExecutionsByJobExecutionID(ctx, je.ID)
	if err != nil {
		return err
	}
	for _, se := range steps {
		se.JobExecution = je
		je.AddStepExecution(se)
	}
	return nil
}

func marshalJobExecution(je *core.JobExecution) (params, failures, ec []byte, err error) {
	if params, err = serialization.MarshalJobParameters(je.Parameters); err != nil {
		return nil, nil, nil, err
	}
	if failures, err = serialization.MarshalFailures(je.Failures); err != nil {
		return nil, nil, nil, err
	}
	if ec, err = serialization.MarshalExecutionContext(je.ExecutionContext); err != nil {
		return nil, nil, nil, err
	}
	return params, failures, ec, nil
}

func scanJobExecution(row rowScanner) (*core.JobExecution, error) {
	je := &core.JobExecution{}
	var (
		paramsJSON, failuresJSON, ecJSON sql.NullString
		status, exitStatus               string
		startTime, endTime               sql.NullTime
	)
	err := row.Scan(
		&je.ID,
		&je.JobInstanceID,
		&je.JobName,
		&paramsJSON,
		&status,
		&exitStatus,
		&startTime,
		&endTime,
		&je.CreateTime,
		&je.LastUpdated,
		&je.Version,
		&failuresJSON,
		&ecJSON,
	)
	if err != nil {
		return nil, err
	}
	je.Status = core.JobStatus(status)
	je.ExitStatus = core.ExitStatus(exitStatus)
	je.StartTime = startTime.Time
	je.EndTime = endTime.Time

	if je.Parameters, err = serialization.UnmarshalJobParameters(bytesOf(paramsJSON)); err != nil {
		logger.Errorf("JobExecution (ID: %s) の JobParameters のデコードに失敗しました: %v", je.ID, err)
		je.Parameters = core.NewJobParameters()
	}
	if je.Failures, err = serialization.UnmarshalFailures(bytesOf(failuresJSON)); err != nil {
		logger.Errorf("JobExecution (ID: %s) の Failures のデコードに失敗しました: %v", je.ID, err)
	}
	if je.ExecutionContext, err = serialization.UnmarshalExecutionContext(bytesOf(ecJSON)); err != nil {
		logger.Errorf("JobExecution (ID: %s) の ExecutionContext のデコードに失敗しました: %v", je.ID, err)
		je.ExecutionContext = core.NewExecutionContext()
	}
	return je, nil
}

var _ job.JobExecution = (*SQLJobExecutionRepository)(nil)
