// Package trigger は cron 式に従ってジョブを定期的に起動します。
package trigger

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/config"
	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// JobStarter は名前でジョブを起動します。adhoc.Starter が満たします。
type JobStarter interface {
	Start(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error)
}

// CronTrigger は登録されたスケジュールごとに JobStarter を呼び出します。
// 前回の起動がまだ終わっていないスケジュールは、その回の起動をスキップします。
type CronTrigger struct {
	mu      sync.Mutex
	cron    *cron.Cron
	starter JobStarter
	entries map[string]cron.EntryID
	tracer  trace.Tracer
}

// NewCronTrigger は秒フィールド付きの cron 式を受け付ける CronTrigger を作成します。
func NewCronTrigger(starter JobStarter) *CronTrigger {
	l := cronLogger{}
	return &CronTrigger{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		starter: starter,
		entries: make(map[string]cron.EntryID),
		tracer:  otel.Tracer("adhoc-trigger"),
	}
}

// AddSchedule はスケジュールを登録します。同名のスケジュールが既にある場合は置き換えます。
func (t *CronTrigger) AddSchedule(sc config.ScheduleConfig) error {
	params, err := core.ParseJobParameters(sc.JobParameters)
	if err != nil {
		return exception.NewBatchErrorf("trigger", "スケジュール '%s' の JobParameters が不正です", sc.Name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.entries[sc.Name]; ok {
		t.cron.Remove(id)
	}
	id, err := t.cron.AddJob(sc.Cron, &scheduledJob{
		name:    sc.Name,
		jobName: sc.JobName,
		params:  params,
		starter: t.starter,
		tracer:  t.tracer,
	})
	if err != nil {
		delete(t.entries, sc.Name)
		return exception.NewBatchErrorf("trigger", "スケジュール '%s' の cron 式 '%s' が不正です", sc.Name, sc.Cron, err)
	}
	t.entries[sc.Name] = id
	logger.Infof("スケジュール '%s' を登録しました。Job: %s, cron: %s", sc.Name, sc.JobName, sc.Cron)
	return nil
}

// RemoveSchedule は指定された名前のスケジュールを削除します。
func (t *CronTrigger) RemoveSchedule(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.entries[name]; ok {
		t.cron.Remove(id)
		delete(t.entries, name)
		logger.Infof("スケジュール '%s' を削除しました。", name)
	}
}

// Len は登録されているスケジュールの数を返します。
func (t *CronTrigger) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Start はスケジューラをバックグラウンドで開始します。
func (t *CronTrigger) Start() {
	t.cron.Start()
	logger.Infof("CronTrigger を開始しました。登録スケジュール数: %d", t.Len())
}

// Stop はスケジューラを停止し、実行中の起動処理の完了を待ちます。
func (t *CronTrigger) Stop(ctx context.Context) error {
	done := t.cron.Stop()
	select {
	case <-done.Done():
		logger.Infof("CronTrigger を停止しました。")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type scheduledJob struct {
	name    string
	jobName string
	params  core.JobParameters
	starter JobStarter
	tracer  trace.Tracer
}

// Run は cron ライブラリから呼び出されます。
func (j *scheduledJob) Run() {
	ctx, span := j.tracer.Start(context.Background(), "trigger.Fire",
		trace.WithAttributes(
			attribute.String("schedule.name", j.name),
			attribute.String("job.name", j.jobName),
		))
	defer span.End()

	logger.Infof("スケジュール '%s' により Job '%s' を起動します。", j.name, j.jobName)
	execution, err := j.starter.Start(ctx, j.jobName, j.params)
	if err != nil {
		logger.Errorf("スケジュール '%s' による Job '%s' の起動に失敗しました: %v", j.name, j.jobName, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if execution != nil {
		span.SetAttributes(
			attribute.String("job.execution.id", execution.ID),
			attribute.String("job.status", string(execution.Status)),
		)
		logger.Infof("スケジュール '%s' による Job '%s' の実行が終了しました。Status: %s", j.name, j.jobName, execution.Status)
	}
}

// cronLogger は cron.Logger を logger パッケージに接続します。
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debugf("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Errorf("cron: %s %v: %v", msg, keysAndValues, err)
}

var _ cron.Logger = cronLogger{}
