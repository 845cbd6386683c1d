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

const stepColumns = "id, job_execution_id, job_instance_id, job_name, step_name, status, exit_status, start_time, end_time, commit_count, rollback_count, failures, execution_context, last_updated, version"

// SQLStepExecutionRepository は StepExecution インターフェースの SQL データベース実装です。
type SQLStepExecutionRepository struct {
	dbConnection database.DBConnection
}

// NewSQLStepExecutionRepository は新しい SQLStepExecutionRepository のインスタンスを作成します。
func NewSQLStepExecutionRepository(dbConn database.DBConnection) *SQLStepExecutionRepository {
	return &SQLStepExecutionRepository{dbConnection: dbConn}
}

// SaveStepExecution は新しい StepExecution をデータベースに保存します。
// create_time は保存時刻で、同一ステップの実行順の判定に使われます。
func (r *SQLStepExecutionRepository) SaveStepExecution(ctx context.Context, stepExecution *core.StepExecution) error {
	if stepExecution.JobExecution == nil {
		return exception.NewBatchErrorf(module, "StepExecution (ID: %s) に JobExecution が関連付けられていません", stepExecution.ID)
	}
	failuresJSON, ecJSON, err := marshalStepExecution(stepExecution)
	if err != nil {
		return err
	}
	now := time.Now()
	stepExecution.LastUpdated = now

	query := r.dbConnection.Dialect().Rebind(
		"INSERT INTO batch_step_execution (" + stepColumns + ", create_time) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	_, err = r.dbConnection.ExecContext(ctx, query,
		stepExecution.ID,
		stepExecution.JobExecution.ID,
		stepExecution.JobExecution.JobInstanceID,
		stepExecution.JobExecution.JobName,
		stepExecution.StepName,
		string(stepExecution.Status),
		string(stepExecution.ExitStatus),
		nullTime(stepExecution.StartTime),
		nullTime(stepExecution.EndTime),
		stepExecution.CommitCount,
		stepExecution.RollbackCount,
		nullString(failuresJSON),
		nullString(ecJSON),
		stepExecution.LastUpdated,
		stepExecution.Version,
		now,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) の保存に失敗しました", stepExecution.ID), err, false, false)
	}

	logger.Debugf("StepExecution (ID: %s, StepName: %s) を保存しました。", stepExecution.ID, stepExecution.StepName)
	return nil
}

// UpdateStepExecution は StepExecution の状態を更新し、Version を 1 つ進めます。
func (r *SQLStepExecutionRepository) UpdateStepExecution(ctx context.Context, stepExecution *core.StepExecution) error {
	failuresJSON, ecJSON, err := marshalStepExecution(stepExecution)
	if err != nil {
		return err
	}
	version := stepExecution.Version + 1
	lastUpdated := time.Now()

	query := r.dbConnection.Dialect().Rebind(`UPDATE batch_step_execution
SET status = ?, exit_status = ?, start_time = ?, end_time = ?, commit_count = ?, rollback_count = ?, failures = ?, execution_context = ?, last_updated = ?, version = ?
WHERE id = ?`)
	res, err := r.dbConnection.ExecContext(ctx, query,
		string(stepExecution.Status),
		string(stepExecution.ExitStatus),
		nullTime(stepExecution.StartTime),
		nullTime(stepExecution.EndTime),
		stepExecution.CommitCount,
		stepExecution.RollbackCount,
		nullString(failuresJSON),
		nullString(ecJSON),
		lastUpdated,
		version,
		stepExecution.ID,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) の更新に失敗しました", stepExecution.ID), err, false, false)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return exception.NewBatchErrorf(module, "StepExecution (ID: %s) が見つかりません", stepExecution.ID)
	}

	stepExecution.Version = version
	stepExecution.LastUpdated = lastUpdated
	return nil
}

// FindStepExecutionsByJobExecutionID は指定された JobExecution に属する StepExecution を作成順に取得します。
func (r *SQLStepExecutionRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*core.StepExecution, error) {
	query := r.dbConnection.Dialect().Rebind(
		"SELECT " + stepColumns + " FROM batch_step_execution WHERE job_execution_id = ? ORDER BY create_time")
	rows, err := r.dbConnection.QueryContext(ctx, query, jobExecutionID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の StepExecution 一覧の取得に失敗しました", jobExecutionID), err, false, false)
	}
	defer rows.Close()

	var steps []*core.StepExecution
	for rows.Next() {
		se, err := scanStepExecution(rows)
		if err != nil {
			return nil, exception.NewBatchError(module, "StepExecution のスキャンに失敗しました", err, false, false)
		}
		steps = append(steps, se)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchError(module, "StepExecution 取得後の行処理中にエラーが発生しました", err, false, false)
	}
	return steps, nil
}

// FindLastStepExecution は JobInstance 内で指定されたステップの最後の StepExecution を取得します。
func (r *SQLStepExecutionRepository) FindLastStepExecution(ctx context.Context, jobInstanceID, stepName string) (*core.StepExecution, error) {
	query := r.dbConnection.Dialect().Rebind(
		"SELECT " + stepColumns + " FROM batch_step_execution WHERE job_instance_id = ? AND step_name = ? ORDER BY create_time DESC LIMIT 1")
	se, err := scanStepExecution(r.dbConnection.QueryRowContext(ctx, query, jobInstanceID, stepName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, exception.NewBatchError(module, fmt.Sprintf("ステップ '%s' の最後の StepExecution の取得に失敗しました", stepName), err, false, false)
	}
	return se, nil
}

// CountStepExecutions は JobInstance 内で指定されたステップが開始された回数を返します。
func (r *SQLStepExecutionRepository) CountStepExecutions(ctx context.Context, jobInstanceID, stepName string) (int, error) {
	query := r.dbConnection.Dialect().Rebind(
		"SELECT COUNT(*) FROM batch_step_execution WHERE job_instance_id = ? AND step_name = ?")
	var count int
	if err := r.dbConnection.QueryRowContext(ctx, query, jobInstanceID, stepName).Scan(&count); err != nil {
		return 0, exception.NewBatchError(module, fmt.Sprintf("ステップ '%s' の実行回数の取得に失敗しました", stepName), err, false, false)
	}
	return count, nil
}

func marshalStepExecution(se *core.StepExecution) (failures, ec []byte, err error) {
	if failures, err = serialization.MarshalFailures(se.Failures); err != nil {
		return nil, nil, err
	}
	if ec, err = serialization.MarshalExecutionContext(se.ExecutionContext); err != nil {
		return nil, nil, err
	}
	return failures, ec, nil
}

// scanStepExecution は 1 行を StepExecution に変換します。
// JobExecution には識別情報 (ID, JobInstanceID, JobName) のみを設定します。
func scanStepExecution(row rowScanner) (*core.StepExecution, error) {
	se := &core.StepExecution{}
	je := &core.JobExecution{}
	var (
		failuresJSON, ecJSON sql.NullString
		status, exitStatus   string
		startTime, endTime   sql.NullTime
	)
	err := row.Scan(
		&se.ID,
		&je.ID,
		&je.JobInstanceID,
		&je.JobName,
		&se.StepName,
		&status,
		&exitStatus,
		&startTime,
		&endTime,
		&se.CommitCount,
		&se.RollbackCount,
		&failuresJSON,
		&ecJSON,
		&se.LastUpdated,
		&se.Version,
	)
	if err != nil {
		return nil, err
	}
	se.JobExecution = je
	se.Status = core.JobStatus(status)
	se.ExitStatus = core.ExitStatus(exitStatus)
	se.StartTime = startTime.Time
	se.EndTime = endTime.Time

	if se.Failures, err = serialization.UnmarshalFailures(bytesOf(failuresJSON)); err != nil {
		logger.Errorf("StepExecution (ID: %s) の Failures のデコードに失敗しました: %v", se.ID, err)
	}
	if se.ExecutionContext, err = serialization.UnmarshalExecutionContext(bytesOf(ecJSON)); err != nil {
		logger.Errorf("StepExecution (ID: %s) の ExecutionContext のデコードに失敗しました: %v", se.ID, err)
		se.ExecutionContext = core.NewExecutionContext()
	}
	return se, nil
}

var _ job.StepExecution = (*SQLStepExecutionRepository)(nil)
