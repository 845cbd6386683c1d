package connector

import (
	"database/sql"

	"github.com/snowflakedb/gosnowflake"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/config"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/database"
)

// snowflakeConnector はSnowflakeへの接続を確立するDBConnectorの実装です。
type snowflakeConnector struct{}

// SnowflakeDSN は DatabaseConfig から gosnowflake の DSN を組み立てます。
func SnowflakeDSN(cfg config.DatabaseConfig) (string, error) {
	sfCfg := &gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
	}
	if cfg.Host != "" {
		sfCfg.Host = cfg.Host
		sfCfg.Port = cfg.Port
	}
	return gosnowflake.DSN(sfCfg)
}

func (c *snowflakeConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn, err := SnowflakeDSN(cfg)
	if err != nil {
		return nil, err
	}
	return sql.Open("snowflake", dsn)
}

func (c *snowflakeConnector) Dialect() database.Dialect {
	return database.DialectSnowflake
}

func init() {
	RegisterConnector("snowflake", &snowflakeConnector{})
}
