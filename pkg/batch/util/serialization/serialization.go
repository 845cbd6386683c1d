// Package serialization はジョブメタデータを JobRepository に保存するための JSON 変換を提供します。
package serialization

import (
	"encoding/json"
	"errors"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

const module = "serialization"

// MarshalExecutionContext は ExecutionContext を JSON バイトスライスにシリアライズします。
func MarshalExecutionContext(ctx core.ExecutionContext) ([]byte, error) {
	if ctx == nil {
		return []byte("{}"), nil // nil の場合は空のJSONオブジェクトを返す
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		logger.Errorf("ExecutionContext のシリアライズに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, "ExecutionContext のシリアライズに失敗しました", err, false, false)
	}
	return data, nil
}

// UnmarshalExecutionContext は JSON バイトスライスを ExecutionContext にデシリアライズします。
// 空データや "null" の場合は空の ExecutionContext を返します。
func UnmarshalExecutionContext(data []byte) (core.ExecutionContext, error) {
	ctx := core.NewExecutionContext()
	if len(data) == 0 || string(data) == "null" {
		return ctx, nil
	}
	if err := json.Unmarshal(data, &ctx); err != nil {
		logger.Errorf("ExecutionContext のデシリアライズに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, "ExecutionContext のデシリアライズに失敗しました", err, false, false)
	}
	return ctx, nil
}

// MarshalJobParameters は JobParameters を型情報付きの JSON 配列にシリアライズします。
func MarshalJobParameters(params core.JobParameters) ([]byte, error) {
	data, err := json.Marshal(params)
	if err != nil {
		logger.Errorf("JobParameters のシリアライズに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, "JobParameters のシリアライズに失敗しました", err, false, false)
	}
	return data, nil
}

// UnmarshalJobParameters は MarshalJobParameters の出力から JobParameters を復元します。
func UnmarshalJobParameters(data []byte) (core.JobParameters, error) {
	if len(data) == 0 || string(data) == "null" {
		return core.NewJobParameters(), nil
	}
	var params core.JobParameters
	if err := json.Unmarshal(data, &params); err != nil {
		logger.Errorf("JobParameters のデシリアライズに失敗しました: %v", err)
		return core.JobParameters{}, exception.NewBatchError(module, "JobParameters のデシリアライズに失敗しました", err, false, false)
	}
	return params, nil
}

// MarshalFailures はエラーのリストをメッセージの JSON 配列にシリアライズします。
func MarshalFailures(failures []error) ([]byte, error) {
	msgs := make([]string, 0, len(failures))
	for _, f := range failures {
		msgs = append(msgs, f.Error())
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, exception.NewBatchError(module, "Failures のシリアライズに失敗しました", err, false, false)
	}
	return data, nil
}

// UnmarshalFailures はメッセージの JSON 配列からエラーのリストを復元します。
// 元のエラー型は保持されず、メッセージのみを持つエラーになります。
func UnmarshalFailures(data []byte) ([]error, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var msgs []string
	if err := json.Unmarshal(data, &msgs); err != nil {
		logger.Errorf("Failures のデシリアライズに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, "Failures のデシリアライズに失敗しました", err, false, false)
	}
	var failures []error
	for _, m := range msgs {
		failures = append(failures, errors.New(m))
	}
	return failures, nil
}
