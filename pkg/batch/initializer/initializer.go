package initializer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/adhoc"
	config "github.com/tigerroll/go_adhoc_batch/pkg/batch/config"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/builder"
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/joblauncher"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/joboperator"
	jsl "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/jsl"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/listener"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/job/registry"
	repository "github.com/tigerroll/go_adhoc_batch/pkg/batch/repository"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/job"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/tracing"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/trigger"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// BatchInitializer はバッチアプリケーションの初期化処理を担当します。
// Initialize の前に Config.EmbeddedConfig, JSLDefinitionBytes, Components を設定してください。
type BatchInitializer struct {
	Config             *config.Config
	EnvFiles           []string
	JSLDefinitionBytes []byte // JSL定義のバイトスライス
	Components         *jsl.Components
	// MetricsRegisterer が nil でない場合、MetricsJobListener を全てのジョブに設定します。
	MetricsRegisterer prometheus.Registerer

	JobRepository      job.JobRepository
	JobRegistry        registry.JobRegistry
	JobBuilderFactory  *builder.JobBuilderFactory
	StepBuilderFactory *builder.StepBuilderFactory
	JobLauncher        *joblauncher.SimpleJobLauncher
	JobOperator        joboperator.JobOperator
	Starter            *adhoc.Starter
	Trigger            *trigger.CronTrigger

	tracerShutdown tracing.ShutdownFunc
}

// NewBatchInitializer は新しい BatchInitializer のインスタンスを作成します。
func NewBatchInitializer(cfg *config.Config) *BatchInitializer {
	return &BatchInitializer{
		Config:     cfg,
		Components: jsl.NewComponents(),
	}
}

// Initialize はバッチアプリケーションの初期化処理を実行し、Starter を返します。
func (bi *BatchInitializer) Initialize(ctx context.Context) (*adhoc.Starter, error) {
	logger.Debugf("BatchInitializer.Initialize が呼び出されました。")

	// Step 1: 設定のロード
	var embedded []byte
	if bi.Config != nil {
		embedded = bi.Config.EmbeddedConfig
	}
	cfg, err := config.NewBytesConfigLoader(embedded, bi.EnvFiles...).Load()
	if err != nil {
		return nil, exception.NewBatchError("initializer", "設定のロードに失敗しました", err, false, false)
	}
	bi.Config = cfg

	logger.SetLogLevel(cfg.System.Logging.Level)
	logger.Infof("ロギングレベルを '%s' に設定しました。", cfg.System.Logging.Level)

	// Step 2: トレーサー
	shutdown, err := tracing.InitTracer(cfg.System.Tracing.ServiceName, cfg.System.Tracing.Enabled)
	if err != nil {
		return nil, exception.NewBatchError("initializer", "トレーサーの初期化に失敗しました", err, false, false)
	}
	bi.tracerShutdown = shutdown

	// Step 3: Job Repository の生成 (SQL の場合は接続とマイグレーションを含む)
	jobRepository, err := repository.NewJobRepository(ctx, *cfg)
	if err != nil {
		return nil, exception.NewBatchError("initializer", "Job Repository の生成に失敗しました", err, false, false)
	}
	bi.JobRepository = jobRepository
	logger.Infof("Job Repository を生成しました。Type: %s", cfg.Database.Type)

	// Step 4: ビルダーとジョブカタログ
	jobListeners := []core.JobExecutionListener{listener.NewLoggingJobListener()}
	if bi.MetricsRegisterer != nil {
		jobListeners = append(jobListeners, listener.NewMetricsJobListener(bi.MetricsRegisterer))
	}
	bi.JobBuilderFactory = builder.NewJobBuilderFactory(jobRepository, jobListeners...)
	bi.StepBuilderFactory = builder.NewStepBuilderFactory(jobRepository, listener.NewLoggingStepListener())
	bi.JobRegistry = registry.NewMapJobRegistry()

	if len(bi.JSLDefinitionBytes) > 0 {
		defs, err := jsl.LoadJSLDefinitionFromBytes(bi.JSLDefinitionBytes)
		if err != nil {
			return nil, exception.NewBatchError("initializer", "JSL 定義のロードに失敗しました", err, false, false)
		}
		components := bi.Components
		if components == nil {
			components = jsl.NewComponents()
		}
		if err := jsl.RegisterAll(defs, components, bi.JobRegistry, bi.JobBuilderFactory, bi.StepBuilderFactory); err != nil {
			return nil, exception.NewBatchError("initializer", "JSL ジョブの登録に失敗しました", err, false, false)
		}
		logger.Infof("JSL 定義のロードが完了しました。ロードされたジョブ数: %d", len(defs))
	}

	// Step 5: JobLauncher, Starter, JobOperator
	bi.JobLauncher = joblauncher.NewSimpleJobLauncher(jobRepository, joblauncher.WithAsync(cfg.Batch.AsyncLauncher))
	bi.Starter = adhoc.NewStarter(bi.JobRegistry, bi.JobLauncher, bi.JobBuilderFactory, bi.StepBuilderFactory)
	bi.JobOperator = joboperator.NewDefaultJobOperator(jobRepository, bi.JobRegistry, bi.JobLauncher)
	logger.Infof("DefaultJobOperator を生成しました。")

	// Step 6: スケジュール
	if len(cfg.Batch.Schedules) > 0 {
		bi.Trigger = trigger.NewCronTrigger(bi.Starter)
		for _, sc := range cfg.Batch.Schedules {
			if err := bi.Trigger.AddSchedule(sc); err != nil {
				return nil, exception.NewBatchError("initializer", "スケジュールの登録に失敗しました", err, false, false)
			}
		}
		bi.Trigger.Start()
	}

	return bi.Starter, nil
}

// Close は BatchInitializer が保持するリソースを解放します。
// スケジューラを停止し、非同期実行中のジョブの終了を待ってからリポジトリを閉じます。
func (bi *BatchInitializer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if bi.Trigger != nil {
		if err := bi.Trigger.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("CronTrigger 停止エラー: %w", err))
		}
	}
	if bi.JobLauncher != nil {
		bi.JobLauncher.Wait()
	}
	if bi.JobRepository != nil {
		if err := bi.JobRepository.Close(); err != nil {
			logger.Errorf("Job Repository のクローズに失敗しました: %v", err)
			errs = append(errs, fmt.Errorf("Job Repository クローズエラー: %w", err))
		} else {
			logger.Infof("Job Repository を正常にクローズしました。")
		}
	}
	if bi.tracerShutdown != nil {
		if err := bi.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("トレーサー停止エラー: %w", err))
		}
	}
	return errors.Join(errs...)
}
