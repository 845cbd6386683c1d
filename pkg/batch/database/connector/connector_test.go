package connector_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/config"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/database"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/database/connector"
)

type mockConnector struct {
	db  *sql.DB
	err error
}

func (c *mockConnector) Connect(config.DatabaseConfig) (*sql.DB, error) { return c.db, c.err }
func (c *mockConnector) Dialect() database.Dialect                      { return database.DialectPostgres }

func TestNewDBConnectionFromConfig(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()

	connector.RegisterConnector("mocksql", &mockConnector{db: db})

	conn, err := connector.NewDBConnectionFromConfig(context.Background(), config.DatabaseConfig{
		Type:           "mocksql",
		ConnectionPool: config.ConnectionPoolConfig{MaxOpenConns: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, database.DialectPostgres, conn.Dialect())
	assert.Equal(t, 3, db.Stats().MaxOpenConnections)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDBConnectionFromConfig_PingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	connector.RegisterConnector("mocksql-down", &mockConnector{db: db})

	_, err = connector.NewDBConnectionFromConfig(context.Background(), config.DatabaseConfig{Type: "mocksql-down"})
	assert.ErrorContains(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDBConnectionFromConfig_UnknownType(t *testing.T) {
	_, err := connector.NewDBConnectionFromConfig(context.Background(), config.DatabaseConfig{Type: "oracle"})
	assert.ErrorContains(t, err, "oracle")
}

func TestSnowflakeDSN(t *testing.T) {
	dsn, err := connector.SnowflakeDSN(config.DatabaseConfig{
		Type:      "snowflake",
		Account:   "myaccount",
		User:      "batch",
		Password:  "secret",
		Database:  "BATCH",
		Schema:    "PUBLIC",
		Warehouse: "WH",
	})
	require.NoError(t, err)
	assert.Contains(t, dsn, "batch:secret@myaccount")
	assert.Contains(t, dsn, "warehouse=WH")
	assert.Contains(t, dsn, "BATCH/PUBLIC")
}
