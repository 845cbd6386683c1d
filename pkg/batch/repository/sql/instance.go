package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/database"
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/job"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
	serialization "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/serialization"
)

const instanceColumns = "id, job_name, job_parameters, parameters_hash, create_time, version"

// SQLJobInstanceRepository は JobInstance インターフェースの SQL データベース実装です。
type SQLJobInstanceRepository struct {
	dbConnection database.DBConnection
}

// NewSQLJobInstanceRepository は新しい SQLJobInstanceRepository のインスタンスを作成します。
func NewSQLJobInstanceRepository(dbConn database.DBConnection) *SQLJobInstanceRepository {
	return &SQLJobInstanceRepository{dbConnection: dbConn}
}

// SaveJobInstance は新しい JobInstance をデータベースに保存します。
func (r *SQLJobInstanceRepository) SaveJobInstance(ctx context.Context, jobInstance *core.JobInstance) error {
	paramsJSON, err := serialization.MarshalJobParameters(jobInstance.Parameters)
	if err != nil {
		return exception.NewBatchError(module, "JobInstance JobParameters のシリアライズに失敗しました", err, false, false)
	}

	query := r.dbConnection.Dialect().Rebind(
		"INSERT INTO batch_job_instance (" + instanceColumns + ") VALUES (?, ?, ?, ?, ?, ?)")
	_, err = r.dbConnection.ExecContext(ctx, query,
		jobInstance.ID,
		jobInstance.JobName,
		nullString(paramsJSON),
		jobInstance.ParametersHash,
		jobInstance.CreateTime,
		jobInstance.Version,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の保存に失敗しました", jobInstance.ID), err, false, false)
	}

	logger.Debugf("JobInstance (ID: %s, JobName: %s) を保存しました。", jobInstance.ID, jobInstance.JobName)
	return nil
}

// FindJobInstanceByJobNameAndParameters は指定されたジョブ名と識別パラメータのハッシュに一致する JobInstance を検索します。
func (r *SQLJobInstanceRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error) {
	query := r.dbConnection.Dialect().Rebind(
		"SELECT " + instanceColumns + " FROM batch_job_instance WHERE job_name = ? AND parameters_hash = ?")
	inst, err := scanJobInstance(r.dbConnection.QueryRowContext(ctx, query, jobName, params.Hash()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (JobName: %s) の検索に失敗しました", jobName), err, false, false)
	}
	return inst, nil
}

// FindJobInstanceByID は指定された ID の JobInstance をデータベースから取得します。
func (r *SQLJobInstanceRepository) FindJobInstanceByID(ctx context.Context, instanceID string) (*core.JobInstance, error) {
	query := r.dbConnection.Dialect().Rebind(
		"SELECT " + instanceColumns + " FROM batch_job_instance WHERE id = ?")
	inst, err := scanJobInstance(r.dbConnection.QueryRowContext(ctx, query, instanceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の取得に失敗しました", instanceID), err, false, false)
	}
	return inst, nil
}

// FindLatestJobInstance は指定されたジョブ名で最後に作成された JobInstance を検索します。
func (r *SQLJobInstanceRepository) FindLatestJobInstance(ctx context.Context, jobName string) (*core.JobInstance, error) {
	query := r.dbConnection.Dialect().Rebind(
		"SELECT " + instanceColumns + " FROM batch_job_instance WHERE job_name = ? ORDER BY create_time DESC LIMIT 1")
	inst, err := scanJobInstance(r.dbConnection.QueryRowContext(ctx, query, jobName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, exception.NewBatchError(module, fmt.Sprintf("ジョブ '%s' の最新 JobInstance の取得に失敗しました", jobName), err, false, false)
	}
	return inst, nil
}

// GetJobInstanceCount は指定されたジョブ名の JobInstance の数を返します。
func (r *SQLJobInstanceRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	query := r.dbConnection.Dialect().Rebind("SELECT COUNT(*) FROM batch_job_instance WHERE job_name = ?")
	var count int
	if err := r.dbConnection.QueryRowContext(ctx, query, jobName).Scan(&count); err != nil {
		return 0, exception.NewBatchError(module, fmt.Sprintf("ジョブ '%s' の JobInstance 数取得に失敗しました", jobName), err, false, false)
	}
	return count, nil
}

// GetJobNames はリポジトリに存在する全てのジョブ名を返します。
func (r *SQLJobInstanceRepository) GetJobNames(ctx context.Context) ([]string, error) {
	rows, err := r.dbConnection.QueryContext(ctx, "SELECT DISTINCT job_name FROM batch_job_instance ORDER BY job_name")
	if err != nil {
		return nil, exception.NewBatchError(module, "ジョブ名の取得に失敗しました", err, false, false)
	}
	defer rows.Close()

	jobNames := []string{}
	for rows.Next() {
		var jobName string
		if err := rows.Scan(&jobName); err != nil {
			return nil, exception.NewBatchError(module, "ジョブ名のスキャンに失敗しました", err, false, false)
		}
		jobNames = append(jobNames, jobName)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchError(module, "ジョブ名取得後の行処理中にエラーが発生しました", err, false, false)
	}

	logger.Debugf("%d 件のジョブ名を取得しました。", len(jobNames))
	return jobNames, nil
}

func scanJobInstance(row rowScanner) (*core.JobInstance, error) {
	inst := &core.JobInstance{}
	var paramsJSON sql.NullString
	if err := row.Scan(&inst.ID, &inst.JobName, &paramsJSON, &inst.ParametersHash, &inst.CreateTime, &inst.Version); err != nil {
		return nil, err
	}
	params, err := serialization.UnmarshalJobParameters(bytesOf(paramsJSON))
	if err != nil {
		logger.Errorf("JobInstance (ID: %s) の JobParameters のデコードに失敗しました: %v", inst.ID, err)
		params = core.NewJobParameters()
	}
	inst.Parameters = params
	return inst, nil
}

var _ job.JobInstance = (*SQLJobInstanceRepository)(nil)
