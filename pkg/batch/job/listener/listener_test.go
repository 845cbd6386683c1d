package listener

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
)

func TestMetricsJobListener_CountsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := NewMetricsJobListener(reg)
	ctx := context.Background()

	for _, fail := range []bool{false, true, true} {
		je := core.NewJobExecution("i", "cleanup", core.NewJobParameters())
		je.MarkAsStarted()
		l.BeforeJob(ctx, je)
		if fail {
			je.MarkAsFailed(errors.New("boom"))
		} else {
			je.MarkAsCompleted()
		}
		l.AfterJob(ctx, je)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(l.executions.WithLabelValues("cleanup", "COMPLETED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(l.executions.WithLabelValues("cleanup", "FAILED")))
	assert.Equal(t, 1, testutil.CollectAndCount(l.duration, "batch_job_duration_seconds"))
}

func TestLoggingListeners_DoNotPanic(t *testing.T) {
	ctx := context.Background()
	je := core.NewJobExecution("i", "cleanup", core.NewJobParameters())
	se := core.NewStepExecution(je, "step")

	jl, sl := NewLoggingJobListener(), NewLoggingStepListener()
	assert.NotPanics(t, func() {
		jl.BeforeJob(ctx, je)
		sl.BeforeStep(ctx, se)
		se.MarkAsFailed(errors.New("boom"))
		sl.AfterStep(ctx, se)
		je.MarkAsFailed(errors.New("boom"))
		jl.AfterJob(ctx, je)
	})
}
