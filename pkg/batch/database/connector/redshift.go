package connector

import (
	"database/sql"

	_ "github.com/lib/pq" // Redshift は PostgreSQL と互換性があるため、pq ドライバを使用

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/config"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/database"
)

// redshiftConnector はRedshiftデータベースへの接続を確立するDBConnectorの実装です。
type redshiftConnector struct{}

func (c *redshiftConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return sql.Open("postgres", cfg.ConnectionString())
}

func (c *redshiftConnector) Dialect() database.Dialect {
	return database.DialectRedshift
}

func init() {
	RegisterConnector("redshift", &redshiftConnector{})
}
