package connector

import (
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL ドライバ

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/config"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/database"
)

// postgresConnector はPostgreSQLデータベースへの接続を確立するDBConnectorの実装です。
type postgresConnector struct{}

func (c *postgresConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return sql.Open("postgres", cfg.ConnectionString())
}

func (c *postgresConnector) Dialect() database.Dialect {
	return database.DialectPostgres
}

func init() {
	RegisterConnector("postgres", &postgresConnector{})
}
