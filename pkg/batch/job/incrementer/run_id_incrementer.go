package incrementer

import (
	"fmt"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// DefaultRunIDKey は RunIDIncrementer が使用する既定のキーです。
const DefaultRunIDKey = "run.id"

// RunIDIncrementer はジョブパラメータの LONG 値 "run.id" をインクリメントする JobParametersIncrementer の実装です。
// "run.id" が存在しない場合は 1 を設定し、存在する場合はその値に 1 を加えます。
type RunIDIncrementer struct {
	key string
}

// NewRunIDIncrementer は新しい RunIDIncrementer のインスタンスを作成します。key が空の場合は "run.id" を使用します。
func NewRunIDIncrementer(key string) *RunIDIncrementer {
	if key == "" {
		key = DefaultRunIDKey
	}
	return &RunIDIncrementer{key: key}
}

// Key はインクリメント対象のパラメータ名を返します。
func (i *RunIDIncrementer) Key() string {
	return i.key
}

// GetNext は前回の JobParameters を引き継ぎ、"run.id" を 1 つ進めた JobParameters を返します。
func (i *RunIDIncrementer) GetNext(params core.JobParameters) core.JobParameters {
	var current int64
	if p, ok := params.Get(i.key); ok {
		switch v := p.Value.(type) {
		case int64:
			current = v
		case int:
			current = int64(v)
		default:
			logger.Warnf("JobParametersIncrementer '%s': '%s' の値が LONG ではありません (%T)。1 から採番し直します。", i.key, i.key, p.Value)
		}
	}

	next := current + 1
	logger.Debugf("JobParametersIncrementer '%s': '%s' を %d から %d にインクリメントしました。", i.key, i.key, current, next)
	return core.NewJobParametersBuilderFrom(params).AddLong(i.key, next).ToJobParameters()
}

// String は RunIDIncrementer の文字列表現を返します。
func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[key=%s]", i.key)
}

var _ core.JobParametersIncrementer = (*RunIDIncrementer)(nil)
