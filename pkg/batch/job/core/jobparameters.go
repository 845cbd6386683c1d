package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParameterType は JobParameter の値の型を表します。
type ParameterType string

const (
	ParameterTypeString  ParameterType = "STRING"
	ParameterTypeLong    ParameterType = "LONG"
	ParameterTypeDouble  ParameterType = "DOUBLE"
	ParameterTypeDate    ParameterType = "DATE"
	ParameterTypeBoolean ParameterType = "BOOLEAN"
)

// JobParameter は型付きのジョブパラメータ値です。
// Identifying が true のパラメータだけが JobInstance の識別に使われます。
type JobParameter struct {
	Value       interface{}
	Type        ParameterType
	Identifying bool
}

// String は値の文字列表現を返します。DATE は RFC3339 (ナノ秒、UTC) で表します。
func (p JobParameter) String() string {
	switch v := p.Value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// JobParameters はジョブ実行時のパラメータを保持する不変の順序付きマップです。
// 値を変更する場合は JobParametersBuilder で新しいインスタンスを作成します。
type JobParameters struct {
	keys   []string
	params map[string]JobParameter
}

// NewJobParameters は空の JobParameters を作成します。
func NewJobParameters() JobParameters {
	return JobParameters{params: map[string]JobParameter{}}
}

// Len はパラメータ数を返します。
func (p JobParameters) Len() int {
	return len(p.keys)
}

// IsEmpty はパラメータが空かどうかを返します。
func (p JobParameters) IsEmpty() bool {
	return len(p.keys) == 0
}

// Keys は追加された順序でキーのコピーを返します。
func (p JobParameters) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Get は指定されたキーの JobParameter を返します。
func (p JobParameters) Get(key string) (JobParameter, bool) {
	v, ok := p.params[key]
	return v, ok
}

// GetString は STRING パラメータを取得します。
func (p JobParameters) GetString(key string) (string, bool) {
	v, ok := p.params[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value.(string)
	return s, ok
}

// GetLong は LONG パラメータを取得します。
func (p JobParameters) GetLong(key string) (int64, bool) {
	v, ok := p.params[key]
	if !ok {
		return 0, false
	}
	n, ok := v.Value.(int64)
	return n, ok
}

// GetDouble は DOUBLE パラメータを取得します。
func (p JobParameters) GetDouble(key string) (float64, bool) {
	v, ok := p.params[key]
	if !ok {
		return 0, false
	}
	f, ok := v.Value.(float64)
	return f, ok
}

// GetDate は DATE パラメータを取得します。
func (p JobParameters) GetDate(key string) (time.Time, bool) {
	v, ok := p.params[key]
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.Value.(time.Time)
	return t, ok
}

// GetBool は BOOLEAN パラメータを取得します。
func (p JobParameters) GetBool(key string) (bool, bool) {
	v, ok := p.params[key]
	if !ok {
		return false, false
	}
	b, ok := v.Value.(bool)
	return b, ok
}

// ToMap はキーと値のマップ (コピー) を返します。
func (p JobParameters) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(p.keys))
	for _, k := range p.keys {
		out[k] = p.params[k].Value
	}
	return out
}

// IdentifyingParameters は識別パラメータだけを含む JobParameters を返します。
func (p JobParameters) IdentifyingParameters() JobParameters {
	b := NewJobParametersBuilder()
	for _, k := range p.keys {
		if v := p.params[k]; v.Identifying {
			b.Add(k, v)
		}
	}
	return b.ToJobParameters()
}

// Equal は二つの JobParameters が同じキー、型、値、識別フラグを持つかどうかを返します。順序は問いません。
func (p JobParameters) Equal(other JobParameters) bool {
	if len(p.keys) != len(other.keys) {
		return false
	}
	for _, k := range p.keys {
		a := p.params[k]
		b, ok := other.params[k]
		if !ok || a.Type != b.Type || a.Identifying != b.Identifying || a.String() != b.String() {
			return false
		}
	}
	return true
}

// Hash は識別パラメータからキー順序に依存しないハッシュ値を計算します。
// JobInstance の検索キーとして使われます。
func (p JobParameters) Hash() string {
	keys := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		if p.params[k].Identifying {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		v := p.params[k]
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(string(v.Type))
		sb.WriteString(":")
		sb.WriteString(v.String())
		sb.WriteString(";")
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// String は "{key=value, ...}" 形式の文字列を返します。
func (p JobParameters) String() string {
	parts := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		parts = append(parts, k+"="+p.params[k].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

type jobParameterJSON struct {
	Key         string          `json:"key"`
	Type        ParameterType   `json:"type"`
	Value       json.RawMessage `json:"value"`
	Identifying bool            `json:"identifying"`
}

// MarshalJSON は順序を保持したまま JobParameters を JSON 配列にシリアライズします。
func (p JobParameters) MarshalJSON() ([]byte, error) {
	out := make([]jobParameterJSON, 0, len(p.keys))
	for _, k := range p.keys {
		v := p.params[k]
		var raw []byte
		var err error
		if v.Type == ParameterTypeDate {
			raw, err = json.Marshal(v.String())
		} else {
			raw, err = json.Marshal(v.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("JobParameter '%s' のシリアライズに失敗しました: %w", k, err)
		}
		out = append(out, jobParameterJSON{Key: k, Type: v.Type, Value: raw, Identifying: v.Identifying})
	}
	return json.Marshal(out)
}

// UnmarshalJSON は MarshalJSON の形式から JobParameters を復元します。
func (p *JobParameters) UnmarshalJSON(data []byte) error {
	var in []jobParameterJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	b := NewJobParametersBuilder()
	for _, e := range in {
		var value interface{}
		var err error
		switch e.Type {
		case ParameterTypeString:
			var s string
			err = json.Unmarshal(e.Value, &s)
			value = s
		case ParameterTypeLong:
			var n int64
			err = json.Unmarshal(e.Value, &n)
			value = n
		case ParameterTypeDouble:
			var f float64
			err = json.Unmarshal(e.Value, &f)
			value = f
		case ParameterTypeDate:
			var s string
			if err = json.Unmarshal(e.Value, &s); err == nil {
				value, err = time.Parse(time.RFC3339Nano, s)
			}
		case ParameterTypeBoolean:
			var v bool
			err = json.Unmarshal(e.Value, &v)
			value = v
		default:
			err = fmt.Errorf("未対応のパラメータ型です: %s", e.Type)
		}
		if err != nil {
			return fmt.Errorf("JobParameter '%s' のデシリアライズに失敗しました: %w", e.Key, err)
		}
		b.Add(e.Key, JobParameter{Value: value, Type: e.Type, Identifying: e.Identifying})
	}
	*p = b.ToJobParameters()
	return nil
}

// JobParametersBuilder は JobParameters を組み立てるためのビルダーです。
// 既存のキーを再設定した場合、値は置き換えられ、順序は最初に追加した位置のままです。
type JobParametersBuilder struct {
	keys   []string
	params map[string]JobParameter
}

// NewJobParametersBuilder は空のビルダーを作成します。
func NewJobParametersBuilder() *JobParametersBuilder {
	return &JobParametersBuilder{params: map[string]JobParameter{}}
}

// NewJobParametersBuilderFrom は既存の JobParameters を初期値とするビルダーを作成します。
func NewJobParametersBuilderFrom(params JobParameters) *JobParametersBuilder {
	return NewJobParametersBuilder().AddJobParameters(params)
}

// Add は JobParameter を追加します。
func (b *JobParametersBuilder) Add(key string, param JobParameter) *JobParametersBuilder {
	if _, exists := b.params[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.params[key] = param
	return b
}

// AddString は識別用の STRING パラメータを追加します。
func (b *JobParametersBuilder) AddString(key, value string) *JobParametersBuilder {
	return b.Add(key, JobParameter{Value: value, Type: ParameterTypeString, Identifying: true})
}

// AddNonIdentifyingString は識別に使われない STRING パラメータを追加します。
func (b *JobParametersBuilder) AddNonIdentifyingString(key, value string) *JobParametersBuilder {
	return b.Add(key, JobParameter{Value: value, Type: ParameterTypeString})
}

// AddLong は識別用の LONG パラメータを追加します。
func (b *JobParametersBuilder) AddLong(key string, value int64) *JobParametersBuilder {
	return b.Add(key, JobParameter{Value: value, Type: ParameterTypeLong, Identifying: true})
}

// AddDouble は識別用の DOUBLE パラメータを追加します。
func (b *JobParametersBuilder) AddDouble(key string, value float64) *JobParametersBuilder {
	return b.Add(key, JobParameter{Value: value, Type: ParameterTypeDouble, Identifying: true})
}

// AddDate は識別用の DATE パラメータを追加します。
func (b *JobParametersBuilder) AddDate(key string, value time.Time) *JobParametersBuilder {
	return b.Add(key, JobParameter{Value: value, Type: ParameterTypeDate, Identifying: true})
}

// AddBool は識別用の BOOLEAN パラメータを追加します。
func (b *JobParametersBuilder) AddBool(key string, value bool) *JobParametersBuilder {
	return b.Add(key, JobParameter{Value: value, Type: ParameterTypeBoolean, Identifying: true})
}

// AddJobParameters は params の全てのパラメータを追加 (上書き) します。
func (b *JobParametersBuilder) AddJobParameters(params JobParameters) *JobParametersBuilder {
	for _, k := range params.keys {
		b.Add(k, params.params[k])
	}
	return b
}

// Remove は指定されたキーのパラメータを削除します。
func (b *JobParametersBuilder) Remove(key string) *JobParametersBuilder {
	if _, exists := b.params[key]; !exists {
		return b
	}
	delete(b.params, key)
	for i, k := range b.keys {
		if k == key {
			b.keys = append(b.keys[:i:i], b.keys[i+1:]...)
			break
		}
	}
	return b
}

// ToJobParameters は現在の内容から不変の JobParameters を作成します。
// 以降のビルダーへの変更は、作成済みの JobParameters に影響しません。
func (b *JobParametersBuilder) ToJobParameters() JobParameters {
	keys := make([]string, len(b.keys))
	copy(keys, b.keys)
	params := make(map[string]JobParameter, len(b.params))
	for k, v := range b.params {
		params[k] = v
	}
	return JobParameters{keys: keys, params: params}
}

// ParseJobParameter は "型:値" 形式 (型を省略した場合は STRING) の文字列を JobParameter に変換します。
// 型は string, long, double, date (RFC3339 または 2006-01-02), boolean です。
// 値の末尾に "(nonidentifying)" を付けると識別に使われないパラメータになります。
func ParseJobParameter(raw string) (JobParameter, error) {
	identifying := true
	if strings.HasSuffix(raw, "(nonidentifying)") {
		identifying = false
		raw = strings.TrimSuffix(raw, "(nonidentifying)")
	}

	typ, value := "string", raw
	if i := strings.Index(raw, ":"); i > 0 {
		switch strings.ToLower(raw[:i]) {
		case "string", "long", "double", "date", "boolean":
			typ, value = strings.ToLower(raw[:i]), raw[i+1:]
		}
	}

	param := JobParameter{Identifying: identifying}
	switch typ {
	case "long":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return JobParameter{}, fmt.Errorf("LONG パラメータ '%s' の解析に失敗しました: %w", value, err)
		}
		param.Value, param.Type = n, ParameterTypeLong
	case "double":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return JobParameter{}, fmt.Errorf("DOUBLE パラメータ '%s' の解析に失敗しました: %w", value, err)
		}
		param.Value, param.Type = f, ParameterTypeDouble
	case "date":
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			if t, err = time.Parse(time.DateOnly, value); err != nil {
				return JobParameter{}, fmt.Errorf("DATE パラメータ '%s' の解析に失敗しました: %w", value, err)
			}
		}
		param.Value, param.Type = t, ParameterTypeDate
	case "boolean":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return JobParameter{}, fmt.Errorf("BOOLEAN パラメータ '%s' の解析に失敗しました: %w", value, err)
		}
		param.Value, param.Type = v, ParameterTypeBoolean
	default:
		param.Value, param.Type = value, ParameterTypeString
	}
	return param, nil
}

// ParseJobParameters は設定ファイルなどの文字列マップから JobParameters を作成します。
// マップには順序が無いため、キーの辞書順で追加します。
func ParseJobParameters(raw map[string]string) (JobParameters, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := NewJobParametersBuilder()
	for _, k := range keys {
		param, err := ParseJobParameter(raw[k])
		if err != nil {
			return JobParameters{}, fmt.Errorf("パラメータ '%s': %w", k, err)
		}
		b.Add(k, param)
	}
	return b.ToJobParameters(), nil
}
