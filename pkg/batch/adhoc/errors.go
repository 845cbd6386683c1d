package adhoc

import "fmt"

// JobResolutionError はジョブカタログでジョブ名を解決できなかったことを表します。
type JobResolutionError struct {
	JobName string
	Err     error
}

func (e *JobResolutionError) Error() string {
	return fmt.Sprintf("Job '%s' を解決できませんでした: %v", e.JobName, e.Err)
}

func (e *JobResolutionError) Unwrap() error {
	return e.Err
}

// JobLaunchError は JobLauncher がジョブの起動を拒否したか、起動に失敗したことを表します。
type JobLaunchError struct {
	JobName string
	Err     error
}

func (e *JobLaunchError) Error() string {
	return fmt.Sprintf("Job '%s' の起動に失敗しました: %v", e.JobName, e.Err)
}

func (e *JobLaunchError) Unwrap() error {
	return e.Err
}
