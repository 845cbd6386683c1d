package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// バッチ実行基盤が返す代表的なエラーです。errors.Is で判定できます。
var (
	ErrNoSuchJob                  = errors.New("no such job")
	ErrDuplicateJob               = errors.New("duplicate job")
	ErrJobExecutionAlreadyRunning = errors.New("job execution already running")
	ErrJobInstanceAlreadyComplete = errors.New("job instance already complete")
	ErrJobRestart                 = errors.New("job restart not allowed")
	ErrInvalidJobParameters       = errors.New("invalid job parameters")
	ErrNoSuchJobExecution         = errors.New("no such job execution")
	ErrJobExecutionNotRunning     = errors.New("job execution not running")
	ErrStartLimitExceeded         = errors.New("start limit exceeded")
)

// BatchError はバッチ処理中に発生するカスタムエラー型です。
// エラーの発生元モジュール、メッセージ、ラップされた元のエラー、
// そしてリトライ可能か、スキップ可能かのフラグを保持します。
type BatchError struct {
	Module      string // エラーが発生したモジュール (例: "job_launcher", "tasklet_step", "config")
	Message     string // エラーの簡潔な説明
	OriginalErr error  // ラップされた元のエラー
	isRetryable bool
	isSkippable bool
	StackTrace  string // スタックトレース (デバッグ用)
}

// NewBatchError は新しい BatchError のインスタンスを作成します。
func NewBatchError(module, message string, originalErr error, isRetryable, isSkippable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf はフォーマット文字列を使用して新しい BatchError のインスタンスを作成します。
// 最後の引数が error の場合、メッセージには含めず元のエラーとして保持します。
// 例: NewBatchErrorf("job_launcher", "Job '%s' の起動に失敗しました", name, err)
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok {
			originalErr = err
			a = a[:n-1]
		}
	}
	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, a...),
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error は error インターフェースの実装です。
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap は errors.Unwrap のために元のエラーを返します。
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable はこのエラーがリトライ可能かどうかを返します。
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable はこのエラーがスキップ可能かどうかを返します。
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsTemporary は一時的なエラーかどうかを判定します。
// チェーン上の BatchError の IsRetryable フラグを参照します。
func IsTemporary(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	return false
}
