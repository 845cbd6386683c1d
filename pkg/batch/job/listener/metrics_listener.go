package listener

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
)

// MetricsJobListener はジョブの実行回数と所要時間を Prometheus メトリクスとして記録します。
type MetricsJobListener struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetricsJobListener は reg にメトリクスを登録した MetricsJobListener を作成します。
// reg が nil の場合は prometheus.DefaultRegisterer を使用します。
func NewMetricsJobListener(reg prometheus.Registerer) *MetricsJobListener {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &MetricsJobListener{
		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_job_executions_total",
				Help: "Total number of batch job executions by final status.",
			},
			[]string{"job_name", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batch_job_duration_seconds",
				Help:    "Duration of batch job executions in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job_name"},
		),
	}
}

// BeforeJob は何もしません。開始時刻は JobExecution の StartTime を使用します。
func (l *MetricsJobListener) BeforeJob(ctx context.Context, jobExecution *core.JobExecution) {}

// AfterJob は最終ステータスごとの実行回数と所要時間を記録します。
func (l *MetricsJobListener) AfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	l.executions.WithLabelValues(jobExecution.JobName, string(jobExecution.Status)).Inc()
	if !jobExecution.StartTime.IsZero() {
		end := jobExecution.EndTime
		if end.IsZero() {
			end = time.Now()
		}
		l.duration.WithLabelValues(jobExecution.JobName).Observe(end.Sub(jobExecution.StartTime).Seconds())
	}
}

var _ core.JobExecutionListener = (*MetricsJobListener)(nil)
