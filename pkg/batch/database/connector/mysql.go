package connector

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // MySQL ドライバ

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/config"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/database"
)

// mysqlConnector はMySQLデータベースへの接続を確立するDBConnectorの実装です。
// DSN には parseTime=true が含まれるため、DATETIME 列は time.Time として読み込まれます。
type mysqlConnector struct{}

func (c *mysqlConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return sql.Open("mysql", cfg.ConnectionString())
}

func (c *mysqlConnector) Dialect() database.Dialect {
	return database.DialectMySQL
}

func init() {
	RegisterConnector("mysql", &mysqlConnector{})
}
