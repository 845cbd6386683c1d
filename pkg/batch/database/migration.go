package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"    // MySQL ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/redshift" // Redshift ドライバを登録
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/config"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// MigrationsTable はフレームワークのマイグレーション履歴を記録するテーブル名です。
const MigrationsTable = "batch_schema_migrations"

//go:embed migrations
var migrationFS embed.FS

// MigrationURL は golang-migrate が期待するデータベース URL とマイグレーションのディレクトリを返します。
// snowflake はスキーマを外部で用意する前提のため、ok=false を返します。
func MigrationURL(cfg config.DatabaseConfig) (databaseURL, dir string, ok bool) {
	connStr := cfg.ConnectionString()
	switch strings.ToLower(cfg.Type) {
	case "postgres":
		databaseURL, dir = connStr, "migrations/postgres"
	case "redshift":
		databaseURL, dir = "redshift://"+strings.TrimPrefix(connStr, "postgres://"), "migrations/redshift"
	case "mysql":
		databaseURL, dir = "mysql://"+connStr+"&multiStatements=true", "migrations/mysql"
	default:
		return "", "", false
	}
	if strings.Contains(databaseURL, "?") {
		databaseURL += "&"
	} else {
		databaseURL += "?"
	}
	return databaseURL + "x-migrations-table=" + MigrationsTable, dir, true
}

// RunMigrations は組み込みのフレームワークスキーマを指定されたデータベースに適用します。
func RunMigrations(cfg config.DatabaseConfig) error {
	databaseURL, dir, ok := MigrationURL(cfg)
	if !ok {
		logger.Warnf("DBタイプ '%s' のマイグレーションはサポートされていません。スキーマは事前に作成されている必要があります。", cfg.Type)
		return nil
	}

	logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s, マイグレーションパス: %s", cfg.Type, dir)

	src, err := iofs.New(migrationFS, dir)
	if err != nil {
		return exception.NewBatchError("migration", fmt.Sprintf("マイグレーションソースの読み込みに失敗しました: %s", dir), err, false, false)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションインスタンスの作成に失敗しました", err, false, false)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warnf("マイグレーションのクローズ中にエラーが発生しました: source=%v, database=%v", srcErr, dbErr)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("マイグレーションは不要です。データベースは最新の状態です。")
			return nil
		}
		return exception.NewBatchError("migration", "マイグレーションの実行に失敗しました", err, false, false)
	}

	logger.Infof("データベースマイグレーションが正常に完了しました。")
	return nil
}
