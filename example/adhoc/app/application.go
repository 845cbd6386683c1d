// Package app はサンプルバッチアプリケーションの起動処理をまとめます。
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appTasklet "github.com/tigerroll/go_adhoc_batch/example/adhoc/tasklet"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/adhoc"
	config "github.com/tigerroll/go_adhoc_batch/pkg/batch/config"
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	jsl "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/jsl"
	initializer "github.com/tigerroll/go_adhoc_batch/pkg/batch/initializer"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// AdhocJobName はカタログジョブの後に起動するアドホックジョブの名前です。
const AdhocJobName = "adhocSummaryJob"

// registerApplicationComponents はアプリケーション固有の Tasklet を JSL コンポーネントとして登録します。
func registerApplicationComponents(components *jsl.Components) {
	components.RegisterTasklet("executionContextWriterTasklet", appTasklet.NewExecutionContextWriterTasklet)
	components.RegisterTasklet("countdownTasklet", appTasklet.NewCountdownTasklet)
	logger.Debugf("全てのアプリケーションコンポーネントビルダーを登録しました。")
}

// setupApplication は BatchInitializer を生成して初期化します。
// エラー時も返された BatchInitializer は Close する必要があります。
func setupApplication(ctx context.Context, envFilePath string, embeddedConfig, embeddedJSL []byte, reg prometheus.Registerer) (*initializer.BatchInitializer, *adhoc.Starter, error) {
	batchInitializer := initializer.NewBatchInitializer(&config.Config{EmbeddedConfig: embeddedConfig})
	if envFilePath != "" {
		batchInitializer.EnvFiles = []string{envFilePath}
	} else {
		logger.Debugf(".env ファイルのパスが指定されていないため、ロードをスキップします。")
	}
	batchInitializer.JSLDefinitionBytes = embeddedJSL
	batchInitializer.MetricsRegisterer = reg
	registerApplicationComponents(batchInitializer.Components)

	starter, err := batchInitializer.Initialize(ctx)
	if err != nil {
		return batchInitializer, nil, exception.NewBatchError("app", "バッチアプリケーションの初期化に失敗しました", err, false, false)
	}
	logger.Infof("バッチアプリケーションの初期化が完了しました。")
	return batchInitializer, starter, nil
}

// startMetricsServer は addr で /metrics を公開する HTTP サーバーを起動し、停止用の関数を返します。
func startMetricsServer(addr string, gatherer prometheus.Gatherer) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("メトリクスサーバーを %s で起動します。", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("メトリクスサーバーがエラーで終了しました: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Errorf("メトリクスサーバーの停止に失敗しました: %v", err)
		}
	}
}

// executeJob は設定されたカタログジョブを起動し、その結果に基づいて終了コードを返します。
func executeJob(ctx context.Context, bi *initializer.BatchInitializer, starter *adhoc.Starter) int {
	jobName := bi.Config.Batch.JobName
	if jobName == "" {
		logger.Errorf("設定ファイルにジョブ名が指定されていません。")
		return 1
	}
	logger.Infof("実行する Job: '%s'", jobName)

	params, err := core.ParseJobParameters(bi.Config.Batch.JobParameters)
	if err != nil {
		return handleApplicationError(err, nil, jobName)
	}

	jobExecution, err := starter.Start(ctx, jobName, params)
	if err != nil {
		return handleApplicationError(err, nil, jobName)
	}
	return handleApplicationError(nil, awaitExecution(ctx, bi, jobExecution), jobName)
}

// executeAdhocJob はカタログに登録されていない 1 ステップのジョブを組み立てて起動します。
func executeAdhocJob(ctx context.Context, bi *initializer.BatchInitializer, starter *adhoc.Starter) int {
	params := core.NewJobParametersBuilder().
		AddDate("requested.at", time.Now()).
		AddNonIdentifyingString("requested.by", "example").
		ToJobParameters()

	jobExecution, err := starter.StartAction(ctx, AdhocJobName, func(ctx context.Context, params core.JobParameters) error {
		names := bi.JobOperator.GetJobNames()
		logger.Infof("アドホックジョブ: ジョブカタログに %d 件のジョブが登録されています: %v (パラメータ: %s)", len(names), names, params)
		return nil
	}, params)
	if err != nil {
		return handleApplicationError(err, nil, AdhocJobName)
	}
	return handleApplicationError(nil, awaitExecution(ctx, bi, jobExecution), AdhocJobName)
}

// awaitExecution は非同期 JobLauncher の場合にジョブの終了を待ち、最新の JobExecution を取得し直します。
func awaitExecution(ctx context.Context, bi *initializer.BatchInitializer, jobExecution *core.JobExecution) *core.JobExecution {
	if jobExecution == nil || !bi.Config.Batch.AsyncLauncher {
		return jobExecution
	}
	bi.JobLauncher.Wait()
	latest, err := bi.JobOperator.GetJobExecution(context.WithoutCancel(ctx), jobExecution.ID)
	if err != nil {
		logger.Errorf("JobExecution (ID: %s) の再取得に失敗しました: %v", jobExecution.ID, err)
		return jobExecution
	}
	return latest
}

// RunApplication はアプリケーションのメインロジックを実行し、プロセスの終了コードを返します。
func RunApplication(ctx context.Context, envFilePath string, embeddedConfig, embeddedJSL []byte) int {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	batchInitializer, starter, initErr := setupApplication(ctx, envFilePath, embeddedConfig, embeddedJSL, reg)

	// 初期化に失敗した場合も、確保済みのリソースはクローズする
	defer func() {
		if closeErr := batchInitializer.Close(); closeErr != nil {
			logger.Errorf("バッチアプリケーションのリソースクローズ中にエラーが発生しました: %v", closeErr)
		} else {
			logger.Infof("バッチアプリケーションのリソースを正常にクローズしました。")
		}
	}()

	if initErr != nil {
		return handleApplicationError(initErr, nil, "")
	}

	if addr := batchInitializer.Config.System.Metrics.Address; addr != "" {
		stop := startMetricsServer(addr, reg)
		defer stop()
	}

	exitCode := executeJob(ctx, batchInitializer, starter)
	if code := executeAdhocJob(ctx, batchInitializer, starter); code > exitCode {
		exitCode = code
	}
	return exitCode
}

// handleApplicationError はアプリケーションのエラーを処理し、適切な終了コードを返します。
func handleApplicationError(err error, jobExecution *core.JobExecution, jobName string) int {
	hasError := false

	if err != nil {
		hasError = true
		var resolutionErr *adhoc.JobResolutionError
		var launchErr *adhoc.JobLaunchError
		switch {
		case errors.As(err, &resolutionErr):
			logger.Errorf("Job '%s' はジョブカタログに登録されていません: %v", resolutionErr.JobName, resolutionErr.Err)
		case errors.As(err, &launchErr):
			logger.Errorf("Job '%s' の起動が拒否されました: %v", launchErr.JobName, launchErr.Err)
		case jobName != "":
			logger.Errorf("Job '%s' の起動処理中にエラーが発生しました: %v", jobName, err)
		default:
			logger.Errorf("アプリケーションの起動処理中にエラーが発生しました: %v", err)
		}

		// BatchError の詳細をログ出力
		var be *exception.BatchError
		if errors.As(err, &be) {
			logger.Errorf("BatchError 詳細: Module=%s, Message=%s, OriginalErr=%v", be.Module, be.Message, be.OriginalErr)
			if be.StackTrace != "" {
				logger.Debugf("BatchError StackTrace:\n%s", be.StackTrace)
			}
		}
	}

	if jobExecution != nil {
		switch jobExecution.Status {
		case core.BatchStatusFailed, core.BatchStatusAbandoned, core.BatchStatusStopped:
			hasError = true
			logger.Errorf("Job '%s' は %s で終了しました。詳細は JobExecution (ID: %s) およびログを確認してください。",
				jobExecution.JobName, jobExecution.Status, jobExecution.ID)
		default:
			logger.Infof("Job '%s' (Execution ID: %s) の最終状態: %s, ExitStatus: %s",
				jobExecution.JobName, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
		}

		for i, f := range jobExecution.Failures {
			logger.Errorf("  - 失敗 %d: %v", i+1, f)
		}
	}

	if hasError {
		return 1
	}
	return 0
}
