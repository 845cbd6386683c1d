package core

import (
	"fmt"
	"sort"
	"strings"

	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
)

// DefaultJobParametersValidator は必須キーと任意キーに基づいて JobParameters を検証します。
// optionalKeys が空の場合、requiredKeys 以外のキーも全て受け付けます。
type DefaultJobParametersValidator struct {
	requiredKeys []string
	optionalKeys []string
}

// NewDefaultJobParametersValidator は新しい DefaultJobParametersValidator を作成します。
func NewDefaultJobParametersValidator(requiredKeys, optionalKeys []string) *DefaultJobParametersValidator {
	return &DefaultJobParametersValidator{
		requiredKeys: append([]string(nil), requiredKeys...),
		optionalKeys: append([]string(nil), optionalKeys...),
	}
}

// Validate は必須キーの欠落と、未知のキーの有無を検証します。
// エラーは exception.ErrInvalidJobParameters をラップします。
func (v *DefaultJobParametersValidator) Validate(params JobParameters) error {
	var missing []string
	for _, k := range v.requiredKeys {
		if _, ok := params.Get(k); !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("必須パラメータが不足しています [%s]: %w", strings.Join(missing, ", "), exception.ErrInvalidJobParameters)
	}

	if len(v.optionalKeys) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(v.requiredKeys)+len(v.optionalKeys))
	for _, k := range v.requiredKeys {
		allowed[k] = struct{}{}
	}
	for _, k := range v.optionalKeys {
		allowed[k] = struct{}{}
	}
	var unknown []string
	for _, k := range params.Keys() {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("未定義のパラメータが指定されています [%s]: %w", strings.Join(unknown, ", "), exception.ErrInvalidJobParameters)
	}
	return nil
}

var _ JobParametersValidator = (*DefaultJobParametersValidator)(nil)
