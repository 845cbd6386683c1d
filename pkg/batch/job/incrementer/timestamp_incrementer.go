package incrementer

import (
	"fmt"
	"time"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// DefaultTimestampKey は TimestampIncrementer が使用する既定のキーです。
const DefaultTimestampKey = "timestamp"

// TimestampIncrementer はジョブパラメータに現在時刻の Unix ミリ秒を LONG 値として設定します。
type TimestampIncrementer struct {
	key string
	now func() time.Time
}

// NewTimestampIncrementer は新しい TimestampIncrementer のインスタンスを作成します。key が空の場合は "timestamp" を使用します。
func NewTimestampIncrementer(key string) *TimestampIncrementer {
	if key == "" {
		key = DefaultTimestampKey
	}
	return &TimestampIncrementer{key: key, now: time.Now}
}

// GetNext は前回の JobParameters を引き継ぎ、"timestamp" を現在時刻で上書きした JobParameters を返します。
// 同一ミリ秒内で呼ばれた場合でも前回値より大きい値を保証します。
func (i *TimestampIncrementer) GetNext(params core.JobParameters) core.JobParameters {
	timestamp := i.now().UnixMilli()
	if prev, ok := params.GetLong(i.key); ok && timestamp <= prev {
		timestamp = prev + 1
	}
	logger.Debugf("JobParametersIncrementer '%s': '%s' を %d に設定しました。", i.key, i.key, timestamp)
	return core.NewJobParametersBuilderFrom(params).AddLong(i.key, timestamp).ToJobParameters()
}

// String は TimestampIncrementer の文字列表現を返します。
func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[key=%s]", i.key)
}

var _ core.JobParametersIncrementer = (*TimestampIncrementer)(nil)
