package job

// JobRepository はバッチ実行に関するメタデータを永続化・管理するためのインターフェースです。
// Spring Batch の JobRepository に相当します。
type JobRepository interface {
	JobInstance
	JobExecution
	StepExecution

	// Close はリポジトリが使用するリソース (データベース接続など) を解放します。
	Close() error
}
