// Package tracing は OpenTelemetry のトレーサープロバイダーを初期化します。
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// ShutdownFunc はトレーサープロバイダーを停止し、未送信のスパンをフラッシュします。
type ShutdownFunc func(context.Context) error

// InitTracer はグローバルなトレーサープロバイダーを設定し、停止用の関数を返します。
// enabled が false の場合は何も設定せず、何もしない停止関数を返します。
func InitTracer(serviceName string, enabled bool) (ShutdownFunc, error) {
	return initTracer(serviceName, enabled, os.Stdout)
}

func initTracer(serviceName string, enabled bool, w io.Writer) (ShutdownFunc, error) {
	if !enabled {
		logger.Debugf("トレースは無効です。")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, exception.NewBatchError("tracing", "トレースエクスポーターの作成に失敗しました", err, false, false)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, exception.NewBatchError("tracing", "トレースリソースの作成に失敗しました", err, false, false)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Infof("OpenTelemetry トレーサーを初期化しました。service.name: %s", serviceName)
	return tp.Shutdown, nil
}
