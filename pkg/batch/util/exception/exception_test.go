package exception_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
)

func TestBatchError_WrapsOriginalError(t *testing.T) {
	cause := errors.New("connection refused")
	err := exception.NewBatchError("database", "Ping に失敗しました", cause, true, false)

	assert.Equal(t, "[database] Ping に失敗しました: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())
	assert.False(t, err.IsSkippable())
	assert.NotEmpty(t, err.StackTrace)
}

func TestNewBatchErrorf_TrailingErrorBecomesCause(t *testing.T) {
	err := exception.NewBatchErrorf("job_registry", "Job '%s' が見つかりません", "ghost-job", exception.ErrNoSuchJob)

	assert.Equal(t, "Job 'ghost-job' が見つかりません", err.Message)
	assert.ErrorIs(t, err, exception.ErrNoSuchJob)
}

func TestNewBatchErrorf_WithoutCause(t *testing.T) {
	err := exception.NewBatchErrorf("config", "未対応のデータベースタイプです: %s", "oracle")

	assert.Nil(t, err.OriginalErr)
	assert.Equal(t, "[config] 未対応のデータベースタイプです: oracle", err.Error())
}

func TestIsTemporary(t *testing.T) {
	retryable := exception.NewBatchError("database", "一時的なエラー", nil, true, false)

	assert.True(t, exception.IsTemporary(fmt.Errorf("wrapped: %w", retryable)))
	assert.False(t, exception.IsTemporary(errors.New("plain")))
	assert.False(t, exception.IsTemporary(nil))
}
