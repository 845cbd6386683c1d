package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// cronParser はスケジュールの検証とトリガーで共通の書式 (秒フィールド付き) を使います。
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule は秒フィールド付きの cron 式を解析します。
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// BytesConfigLoader はバイトスライスから設定をロードする ConfigLoader の実装です。
type BytesConfigLoader struct {
	data     []byte
	envFiles []string
}

// NewBytesConfigLoader は新しい BytesConfigLoader のインスタンスを作成します。
// envFiles を省略した場合はカレントディレクトリの .env を読み込みます。
func NewBytesConfigLoader(data []byte, envFiles ...string) *BytesConfigLoader {
	return &BytesConfigLoader{data: data, envFiles: envFiles}
}

// Load は埋め込まれたバイトスライスから設定をロードします。
// YAML → .env → 環境変数 の順に適用し、最後に構造体の検証を行います。
func (l *BytesConfigLoader) Load() (*Config, error) {
	cfg := NewConfig()

	if err := yaml.Unmarshal(l.data, cfg); err != nil {
		return nil, exception.NewBatchError("config", "YAML設定のパースに失敗しました", err, false, false)
	}
	cfg.EmbeddedConfig = l.data

	// .env は既存の環境変数を上書きしません。
	if err := godotenv.Load(l.envFiles...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debugf(".env ファイルが見つかりません。環境変数のみを使用します。")
		} else {
			return nil, exception.NewBatchError("config", ".env ファイルの読み込みに失敗しました", err, false, false)
		}
	}

	loadEnvVars(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := ParseSchedule(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate は Config の各フィールドを検証します。
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return exception.NewBatchError("config", fmt.Sprintf("設定値が不正です: %s", strings.Join(msgs, ", ")), err, false, false)
	}
	return exception.NewBatchError("config", "設定値の検証に失敗しました", err, false, false)
}

func envInt(name string, dst *int) {
	s := os.Getenv(name)
	if s == "" {
		return
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		logger.Warnf("%s の値 '%s' が無効です。デフォルト値または設定ファイルの値を使用します。", name, s)
		return
	}
	*dst = v
}

func envString(name string, dst *string) {
	if s := os.Getenv(name); s != "" {
		*dst = s
	}
}

// 環境変数で個別の設定値を上書きする関数
func loadEnvVars(cfg *Config) {
	// Database 設定
	envString("DATABASE_TYPE", &cfg.Database.Type)
	envString("DATABASE_HOST", &cfg.Database.Host)
	envInt("DATABASE_PORT", &cfg.Database.Port)
	envString("DATABASE_DATABASE", &cfg.Database.Database)
	envString("DATABASE_USER", &cfg.Database.User)
	envString("DATABASE_PASSWORD", &cfg.Database.Password)
	envString("DATABASE_SSLMODE", &cfg.Database.Sslmode)
	envString("DATABASE_ACCOUNT", &cfg.Database.Account)
	envString("DATABASE_WAREHOUSE", &cfg.Database.Warehouse)
	envString("DATABASE_SCHEMA", &cfg.Database.Schema)
	if s := os.Getenv("DATABASE_MIGRATE"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			cfg.Database.Migrate = b
		} else {
			logger.Warnf("DATABASE_MIGRATE の値 '%s' が無効です。", s)
		}
	}
	envInt("DATABASE_MAX_OPEN_CONNS", &cfg.Database.ConnectionPool.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &cfg.Database.ConnectionPool.MaxIdleConns)
	envInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", &cfg.Database.ConnectionPool.ConnMaxLifetimeSeconds)

	// Batch 設定
	envString("BATCH_JOB_NAME", &cfg.Batch.JobName)
	if s := os.Getenv("BATCH_ASYNC_LAUNCHER"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			cfg.Batch.AsyncLauncher = b
		} else {
			logger.Warnf("BATCH_ASYNC_LAUNCHER の値 '%s' が無効です。", s)
		}
	}

	// System 設定
	envString("SYSTEM_LOGGING_LEVEL", &cfg.System.Logging.Level)
	envString("SYSTEM_METRICS_ADDRESS", &cfg.System.Metrics.Address)
}
