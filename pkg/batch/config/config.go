package config

import (
	"fmt"
	"strings"
)

// EmbeddedConfig は、設定ファイルの内容を保持するためのフィールドです。
// main.go から渡される埋め込み設定を格納します。
type EmbeddedConfig []byte

// ConnectionPoolConfig はデータベースコネクションプールの設定を保持します。
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns           int `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds" validate:"gte=0"`
}

// DatabaseConfig は JobRepository が使用するデータベースの設定です。
// Type が memory の場合、接続関連の項目は使用されません。
type DatabaseConfig struct {
	Type     string `yaml:"type" validate:"required,oneof=memory postgres mysql redshift snowflake"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	Database string `yaml:"database" validate:"required_unless=Type memory"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Sslmode  string `yaml:"sslmode"`
	// Snowflake 用
	Account   string `yaml:"account" validate:"required_if=Type snowflake"`
	Warehouse string `yaml:"warehouse"`
	Schema    string `yaml:"schema"`
	// Migrate が true の場合、起動時にフレームワークのスキーマを適用します。
	Migrate        bool                 `yaml:"migrate"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

// IsMemory はインメモリの JobRepository を使用する設定かどうかを返します。
func (c DatabaseConfig) IsMemory() bool {
	return c.Type == "" || strings.EqualFold(c.Type, "memory")
}

// ConnectionString は database/sql および golang-migrate で使用する接続文字列を返します。
// snowflake の DSN はドライバ側で組み立てるため、ここでは空文字列を返します。
func (c DatabaseConfig) ConnectionString() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "redshift":
		sslmode := c.Sslmode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Database, sslmode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	default:
		return ""
	}
}

// ScheduleConfig は cron 式で定期起動するジョブの設定です。
type ScheduleConfig struct {
	Name          string            `yaml:"name" validate:"required"`
	Cron          string            `yaml:"cron" validate:"required,cron"`
	JobName       string            `yaml:"job_name" validate:"required"`
	JobParameters map[string]string `yaml:"job_parameters"`
}

// BatchConfig はジョブ起動に関する設定です。
type BatchConfig struct {
	// JobName は起動時に実行するカタログ上のジョブ名です。空の場合は起動時の実行を行いません。
	JobName string `yaml:"job_name"`
	// JobParameters は "type:value" 形式の文字列で指定します (例: "long:10")。
	JobParameters map[string]string `yaml:"job_parameters"`
	AsyncLauncher bool              `yaml:"async_launcher"`
	Schedules     []ScheduleConfig  `yaml:"schedules" validate:"dive"`
}

// LoggingConfig はログ出力の設定です。
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type MetricsConfig struct {
	// Address が空でない場合、/metrics エンドポイントを公開します (例: ":2112")。
	Address string `yaml:"address"`
}

type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

type Config struct {
	Database       DatabaseConfig `yaml:"database"`
	Batch          BatchConfig    `yaml:"batch"`
	System         SystemConfig   `yaml:"system"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"` // 埋め込み設定を格納するためのフィールド。YAMLからは読み込まない。
}

// NewConfig はデフォルト値を設定した Config の新しいインスタンスを返します。
func NewConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type: "memory",
		},
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO"},
			Tracing:  TracingConfig{ServiceName: "adhoc-batch"},
		},
	}
}
