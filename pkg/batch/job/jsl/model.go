package jsl

// Catalog は JSL ファイルのトップレベル構造です。1 ファイルに複数のジョブを定義できます。
type Catalog struct {
	Jobs []Job `yaml:"jobs"`
}

// Job は単一のジョブ定義を表します。
type Job struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Incrementer ComponentRef   `yaml:"incrementer,omitempty"` // JobParametersIncrementer の参照
	Parameters  Parameters     `yaml:"parameters,omitempty"`
	Restartable *bool          `yaml:"restartable,omitempty"` // 省略時は true
	Listeners   []ComponentRef `yaml:"listeners,omitempty"`   // Job-level listeners
	Steps       []Step         `yaml:"steps"`
}

// Parameters はジョブが受け付けるパラメータのキーを定義します。
// Optional が空の場合、Required 以外のキーも全て受け付けます。
type Parameters struct {
	Required []string `yaml:"required,omitempty"`
	Optional []string `yaml:"optional,omitempty"`
}

// Step はジョブ内の Tasklet ステップを表します。ステップは定義順に実行されます。
type Step struct {
	ID                   string         `yaml:"id"`
	Description          string         `yaml:"description,omitempty"`
	Tasklet              ComponentRef   `yaml:"tasklet"`
	AllowStartIfComplete bool           `yaml:"allow-start-if-complete,omitempty"`
	StartLimit           int            `yaml:"start-limit,omitempty"`
	Listeners            []ComponentRef `yaml:"listeners,omitempty"`
}

// ComponentRef は登録済みのコンポーネント (tasklet, listener, incrementer) を参照します。
type ComponentRef struct {
	Ref        string            `yaml:"ref"`                  // The name/ID of the component (e.g., "runIdIncrementer", "purgeTasklet")
	Properties map[string]string `yaml:"properties,omitempty"` // JSLから注入されるプロパティ
}

// IsRestartable は restartable の指定を解決します。
func (j Job) IsRestartable() bool {
	return j.Restartable == nil || *j.Restartable
}
