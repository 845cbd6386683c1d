package joblauncher

import (
	"context"
	"fmt"
	"sync"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/job"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// SimpleJobLauncher は JobLauncher インターフェースのシンプルな実装です。
// JobExecution の基本的なライフサイクル管理と JobRepository を使用した永続化を行います。
type SimpleJobLauncher struct {
	jobRepository job.JobRepository
	async         bool

	// 実行中のジョブのキャンセル関数を保持するマップ
	activeJobCancellations map[string]context.CancelFunc
	mu                     sync.Mutex
	running                sync.WaitGroup
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// Option は SimpleJobLauncher の任意設定です。
type Option func(*SimpleJobLauncher)

// WithAsync を true にすると、ジョブを別の goroutine で実行し、STARTED 状態の JobExecution を直ちに返します。
// 非同期実行中の JobExecution は launcher 側で更新されるため、状態は JobRepository から参照してください。
func WithAsync(async bool) Option {
	return func(l *SimpleJobLauncher) { l.async = async }
}

// NewSimpleJobLauncher は新しい SimpleJobLauncher のインスタンスを作成します。
func NewSimpleJobLauncher(jobRepository job.JobRepository, opts ...Option) *SimpleJobLauncher {
	l := &SimpleJobLauncher{
		jobRepository:          jobRepository,
		activeJobCancellations: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *SimpleJobLauncher) registerCancelFunc(executionID string, cancelFunc context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeJobCancellations[executionID] = cancelFunc
	logger.Debugf("JobExecution (ID: %s) の CancelFunc を登録しました。", executionID)
}

func (l *SimpleJobLauncher) unregisterCancelFunc(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancelFunc, ok := l.activeJobCancellations[executionID]; ok {
		cancelFunc()
		delete(l.activeJobCancellations, executionID)
		logger.Debugf("JobExecution (ID: %s) の CancelFunc を登録解除しました。", executionID)
	}
}

// Stop は実行中の JobExecution のコンテキストをキャンセルします。
// このランチャーで実行中でない場合は exception.ErrJobExecutionNotRunning をラップしたエラーを返します。
func (l *SimpleJobLauncher) Stop(executionID string) error {
	l.mu.Lock()
	cancelFunc, ok := l.activeJobCancellations[executionID]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("JobExecution (ID: %s) は実行中ではありません: %w", executionID, exception.ErrJobExecutionNotRunning)
	}
	logger.Infof("JobExecution (ID: %s) に停止を要求します。", executionID)
	cancelFunc()
	return nil
}

// Wait は非同期で実行中の全てのジョブの終了を待ちます。
func (l *SimpleJobLauncher) Wait() {
	l.running.Wait()
}

// Run は指定された Job を JobParameters とともに起動し、JobExecution を管理します。
func (l *SimpleJobLauncher) Run(ctx context.Context, batchJob core.Job, params core.JobParameters) (*core.JobExecution, error) {
	if batchJob == nil {
		return nil, exception.NewBatchErrorf("job_launcher", "起動する Job が指定されていません")
	}
	jobName := batchJob.JobName()
	logger.Infof("JobLauncher を使用して Job '%s' を起動します。", jobName)

	// Step 1: JobParametersIncrementer による次回パラメータの生成
	params, err := l.nextParameters(ctx, batchJob, params)
	if err != nil {
		return nil, err
	}

	// Step 2: JobParameters のバリデーション
	if err := batchJob.ValidateParameters(params); err != nil {
		logger.Errorf("Job '%s': JobParameters のバリデーションに失敗しました: %v", jobName, err)
		return nil, exception.NewBatchError("job_launcher", "JobParameters のバリデーションエラー", fmt.Errorf("%w: %w", exception.ErrInvalidJobParameters, err), false, false)
	}

	// Step 3: JobInstance の取得または作成
	jobInstance, err := l.jobInstanceFor(ctx, batchJob, params)
	if err != nil {
		return nil, err
	}

	// Step 4: JobExecution の作成と初期保存
	jobExecution := core.NewJobExecution(jobInstance.ID, jobName, params)
	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("JobExecution (ID: %s) の初期永続化に失敗しました: %v", jobExecution.ID, err)
		return nil, exception.NewBatchError("job_launcher", "起動処理エラー: JobExecution の初期保存に失敗しました", err, false, false)
	}

	// Step 5: STARTED に更新
	jobExecution.MarkAsStarted()
	if err := l.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("JobExecution (ID: %s) の Started 状態への更新に失敗しました: %v", jobExecution.ID, err)
		return nil, exception.NewBatchError("job_launcher", "起動処理エラー: JobExecution 状態更新エラー (Started)", err, false, false)
	}

	// 非同期実行では呼び出し元のキャンセルをジョブに伝播させない
	parent := ctx
	if l.async {
		parent = context.WithoutCancel(ctx)
	}
	jobCtx, cancel := context.WithCancel(parent)
	l.registerCancelFunc(jobExecution.ID, cancel)

	logger.Infof("Job '%s' (Execution ID: %s, Job Instance ID: %s) を実行します。", jobName, jobExecution.ID, jobInstance.ID)

	if l.async {
		l.running.Add(1)
		go func() {
			defer l.running.Done()
			if err := l.execute(jobCtx, batchJob, jobExecution, params); err != nil {
				logger.Errorf("Job '%s' (Execution ID: %s) の非同期実行でエラーが発生しました: %v", jobName, jobExecution.ID, err)
			}
		}()
		return jobExecution, nil
	}

	if err := l.execute(jobCtx, batchJob, jobExecution, params); err != nil {
		return nil, err
	}
	return jobExecution, nil
}

// execute は Job を実行し、最終状態を永続化します。
func (l *SimpleJobLauncher) execute(ctx context.Context, batchJob core.Job, jobExecution *core.JobExecution, params core.JobParameters) error {
	defer l.unregisterCancelFunc(jobExecution.ID)

	runErr := batchJob.Run(ctx, jobExecution, params)
	if runErr != nil && !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsFailed(runErr)
	}

	// キャンセル後でも最終状態は永続化する
	if err := l.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); err != nil {
		logger.Errorf("JobExecution (ID: %s) の最終状態の更新に失敗しました: %v", jobExecution.ID, err)
		return exception.NewBatchError("job_launcher", "JobExecution 最終状態の永続化に失敗しました", err, false, false)
	}
	if runErr != nil {
		return exception.NewBatchError("job_launcher", fmt.Sprintf("Job '%s' の実行基盤でエラーが発生しました", batchJob.JobName()), runErr, false, false)
	}
	logger.Debugf("JobExecution (ID: %s) を JobRepository で最終状態 (%s) に更新しました。", jobExecution.ID, jobExecution.Status)
	return nil
}

// nextParameters は JobParametersIncrementer が設定されている場合、前回の JobInstance のパラメータから次回の値を生成し、
// 呼び出し元のパラメータを重ねた JobParameters を返します。キーが重複した場合は呼び出し元の値を優先します。
func (l *SimpleJobLauncher) nextParameters(ctx context.Context, batchJob core.Job, params core.JobParameters) (core.JobParameters, error) {
	inc := batchJob.JobParametersIncrementer()
	if inc == nil {
		return params, nil
	}

	previous := core.NewJobParameters()
	last, err := l.jobRepository.FindLatestJobInstance(ctx, batchJob.JobName())
	if err != nil {
		logger.Errorf("Job '%s' の最新の JobInstance の検索に失敗しました: %v", batchJob.JobName(), err)
		return core.JobParameters{}, exception.NewBatchError("job_launcher", "起動処理エラー: JobInstance の検索に失敗しました", err, false, false)
	}
	if last != nil {
		previous = last.Parameters
	}

	next := inc.GetNext(previous)
	b := core.NewJobParametersBuilderFrom(params)
	for _, k := range next.Keys() {
		if _, supplied := params.Get(k); supplied {
			continue
		}
		nv, _ := next.Get(k)
		if pv, ok := previous.Get(k); ok && pv.Type == nv.Type && pv.String() == nv.String() {
			// インクリメンタが変更していない前回の値は引き継がない
			continue
		}
		b.Add(k, nv)
	}
	result := b.ToJobParameters()
	logger.Debugf("Job '%s': JobParametersIncrementer により JobParameters を生成しました: %s", batchJob.JobName(), result)
	return result, nil
}

// jobInstanceFor は JobInstance を検索し、前回の実行状態から起動可否を判定します。見つからない場合は新規に作成します。
func (l *SimpleJobLauncher) jobInstanceFor(ctx context.Context, batchJob core.Job, params core.JobParameters) (*core.JobInstance, error) {
	jobName := batchJob.JobName()
	jobInstance, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err != nil {
		logger.Errorf("JobInstance (JobName: %s, Parameters: %s) の検索に失敗しました: %v", jobName, params, err)
		return nil, exception.NewBatchError("job_launcher", "起動処理エラー: JobInstance の検索に失敗しました", err, false, false)
	}

	if jobInstance == nil {
		jobInstance = core.NewJobInstance(jobName, params)
		if err := l.jobRepository.SaveJobInstance(ctx, jobInstance); err != nil {
			logger.Errorf("新しい JobInstance (ID: %s) の保存に失敗しました: %v", jobInstance.ID, err)
			return nil, exception.NewBatchError("job_launcher", "起動処理エラー: 新しい JobInstance の保存に失敗しました", err, false, false)
		}
		logger.Infof("新しい JobInstance (ID: %s, JobName: %s) を作成し保存しました。", jobInstance.ID, jobInstance.JobName)
		return jobInstance, nil
	}

	last, err := l.jobRepository.FindLatestJobExecution(ctx, jobInstance.ID)
	if err != nil {
		return nil, exception.NewBatchError("job_launcher", "起動処理エラー: JobExecution の検索に失敗しました", err, false, false)
	}
	if last != nil {
		switch {
		case last.Status.IsRunning():
			return nil, exception.NewBatchErrorf("job_launcher", "Job '%s' の JobExecution (ID: %s) は実行中です", jobName, last.ID, exception.ErrJobExecutionAlreadyRunning)
		case last.Status == core.BatchStatusCompleted || last.Status == core.BatchStatusAbandoned:
			return nil, exception.NewBatchErrorf("job_launcher", "Job '%s' の JobInstance (ID: %s) は既に %s です", jobName, jobInstance.ID, last.Status, exception.ErrJobInstanceAlreadyComplete)
		case !batchJob.IsRestartable():
			return nil, exception.NewBatchErrorf("job_launcher", "Job '%s' はリスタートできません (前回の状態: %s)", jobName, last.Status, exception.ErrJobRestart)
		}
		logger.Infof("既存の JobInstance (ID: %s, JobName: %s) をリスタートします。前回の状態: %s", jobInstance.ID, jobName, last.Status)
	}
	return jobInstance, nil
}
