package incrementer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
)

func TestRunIDIncrementer_StartsAtOneAndIncrements(t *testing.T) {
	inc := NewRunIDIncrementer("")

	first := inc.GetNext(core.NewJobParameters())
	runID, ok := first.GetLong("run.id")
	require.True(t, ok)
	assert.Equal(t, int64(1), runID)

	prev := core.NewJobParametersBuilder().AddString("date", "2024-01-01").AddLong("run.id", 7).ToJobParameters()
	next := inc.GetNext(prev)
	runID, _ = next.GetLong("run.id")
	assert.Equal(t, int64(8), runID)
	date, _ := next.GetString("date")
	assert.Equal(t, "2024-01-01", date)

	// 元の JobParameters は変更されない
	runID, _ = prev.GetLong("run.id")
	assert.Equal(t, int64(7), runID)
}

func TestRunIDIncrementer_RestartsWhenValueIsNotLong(t *testing.T) {
	prev := core.NewJobParametersBuilder().AddString("run.id", "abc").ToJobParameters()
	next := NewRunIDIncrementer("run.id").GetNext(prev)

	runID, ok := next.GetLong("run.id")
	require.True(t, ok)
	assert.Equal(t, int64(1), runID)
}

func TestTimestampIncrementer_IsMonotonic(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	inc := NewTimestampIncrementer("")
	inc.now = func() time.Time { return fixed }

	first := inc.GetNext(core.NewJobParameters())
	second := inc.GetNext(first)

	a, _ := first.GetLong("timestamp")
	b, _ := second.GetLong("timestamp")
	assert.Equal(t, fixed.UnixMilli(), a)
	assert.Equal(t, a+1, b)
}

func TestNew(t *testing.T) {
	inc, err := New(RefRunID, map[string]string{"key": "seq"})
	require.NoError(t, err)
	assert.Equal(t, "seq", inc.(*RunIDIncrementer).Key())

	inc, err = New(RefTimestamp, nil)
	require.NoError(t, err)
	assert.IsType(t, &TimestampIncrementer{}, inc)

	inc, err = New("", nil)
	require.NoError(t, err)
	assert.Nil(t, inc)

	_, err = New("unknownIncrementer", nil)
	assert.Error(t, err)
}
