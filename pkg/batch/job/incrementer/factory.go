package incrementer

import (
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
)

// 参照名 (JSL の incrementer.ref) です。
const (
	RefRunID     = "runIdIncrementer"
	RefTimestamp = "timestampIncrementer"
)

// New は参照名とプロパティから JobParametersIncrementer を作成します。
// プロパティ "key" でインクリメント対象のパラメータ名を変更できます。
// ref が空の場合は nil (インクリメンタなし) を返します。
func New(ref string, properties map[string]string) (core.JobParametersIncrementer, error) {
	key := properties["key"]
	switch ref {
	case "":
		return nil, nil
	case RefRunID:
		return NewRunIDIncrementer(key), nil
	case RefTimestamp:
		return NewTimestampIncrementer(key), nil
	default:
		return nil, exception.NewBatchErrorf("incrementer", "未対応の JobParametersIncrementer です: %s", ref)
	}
}
