package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	logLevel = new(slog.LevelVar)
	current  atomic.Pointer[slog.Logger]
)

func init() {
	logLevel.Set(slog.LevelInfo)
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// SetLogLevel はログレベルを設定します。不明なレベルの場合は INFO で続行します。
func SetLogLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "INFO":
		logLevel.Set(slog.LevelInfo)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR", "FATAL":
		logLevel.Set(slog.LevelError)
	default:
		Warnf("不明なログレベル '%s' が指定されました。INFO レベルで続行します。", level)
		logLevel.Set(slog.LevelInfo)
	}
}

// SetLogger は出力先のロガーを差し替えます。ログレベルは SetLogLevel の設定が引き続き使われます。
func SetLogger(l *slog.Logger) {
	if l != nil {
		current.Store(l)
	}
}

// Logger は現在のロガーを返します。
func Logger() *slog.Logger {
	return current.Load()
}

func logf(level slog.Level, format string, v ...interface{}) {
	l := current.Load()
	ctx := context.Background()
	if !l.Enabled(ctx, level) {
		return
	}
	l.Log(ctx, level, fmt.Sprintf(format, v...))
}

// Debugf は DEBUG レベルのログを出力します。
func Debugf(format string, v ...interface{}) {
	logf(slog.LevelDebug, format, v...)
}

// Infof は INFO レベルのログを出力します。
func Infof(format string, v ...interface{}) {
	logf(slog.LevelInfo, format, v...)
}

// Warnf は WARN レベルのログを出力します。
func Warnf(format string, v ...interface{}) {
	logf(slog.LevelWarn, format, v...)
}

// Errorf は ERROR レベルのログを出力します。
func Errorf(format string, v ...interface{}) {
	logf(slog.LevelError, format, v...)
}

// Fatalf は FATAL レベルのログを出力し、プログラムを終了します。
func Fatalf(format string, v ...interface{}) {
	current.Load().Error(fmt.Sprintf(format, v...), "fatal", true)
	os.Exit(1)
}
