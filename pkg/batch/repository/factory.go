package repository

import (
	"context"
	"fmt"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/config"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/database"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/database/connector"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/job"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/memory"
	sqlrepo "github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/sql"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// NewJobRepository は JobRepository のインスタンスを作成します。
// database.type が memory の場合はインメモリ実装を返し、それ以外はデータベース接続を確立して
// SQL 実装を返します。database.migrate が true の場合はスキーマを適用します。
func NewJobRepository(ctx context.Context, cfg config.Config) (job.JobRepository, error) {
	const module = "repository_factory"

	if cfg.Database.IsMemory() {
		return memory.NewJobRepository(), nil
	}

	logger.Debugf("JobRepository の生成を開始します (Type: %s).", cfg.Database.Type)

	if cfg.Database.Migrate {
		if err := database.RunMigrations(cfg.Database); err != nil {
			return nil, err
		}
	}

	dbConn, err := connector.NewDBConnectionFromConfig(ctx, cfg.Database)
	if err != nil {
		logger.Errorf("JobRepository 用のデータベース接続確立に失敗しました (Type: %s): %v", cfg.Database.Type, err)
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobRepository 用のデータベース接続確立に失敗しました (Type: %s)", cfg.Database.Type), err, false, false)
	}

	logger.Debugf("SQLJobRepository を生成しました。")
	return sqlrepo.NewSQLJobRepository(dbConn), nil
}
