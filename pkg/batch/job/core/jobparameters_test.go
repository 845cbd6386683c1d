package core_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/tigerroll/go_adhoc_batch/pkg/batch/job/core"
	exception "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
)

func TestJobParametersBuilder_KeepsInsertionOrder(t *testing.T) {
	params := core.NewJobParametersBuilder().
		AddString("target", "/tmp").
		AddLong("run.id", 3).
		AddBool("dryRun", true).
		AddString("target", "/var/tmp").
		ToJobParameters()

	assert.Equal(t, []string{"target", "run.id", "dryRun"}, params.Keys())
	target, ok := params.GetString("target")
	require.True(t, ok)
	assert.Equal(t, "/var/tmp", target)
	runID, ok := params.GetLong("run.id")
	require.True(t, ok)
	assert.Equal(t, int64(3), runID)
	_, ok = params.GetLong("target")
	assert.False(t, ok, "型が異なる場合は取得できない")
}

func TestJobParameters_IsImmutableAfterBuild(t *testing.T) {
	b := core.NewJobParametersBuilder().AddString("date", "2024-01-01")
	params := b.ToJobParameters()

	b.AddString("date", "2024-02-02").AddString("extra", "x")
	keys := params.Keys()
	keys[0] = "mutated"

	date, _ := params.GetString("date")
	assert.Equal(t, "2024-01-01", date)
	assert.Equal(t, 1, params.Len())
	assert.Equal(t, []string{"date"}, params.Keys())

	m := params.ToMap()
	m["date"] = "changed"
	date, _ = params.GetString("date")
	assert.Equal(t, "2024-01-01", date)
}

func TestJobParameters_HashIgnoresOrderAndNonIdentifying(t *testing.T) {
	a := core.NewJobParametersBuilder().
		AddString("date", "2024-01-01").
		AddLong("run.id", 1).
		AddNonIdentifyingString("note", "first").
		ToJobParameters()
	b := core.NewJobParametersBuilder().
		AddLong("run.id", 1).
		AddString("date", "2024-01-01").
		AddNonIdentifyingString("note", "second").
		ToJobParameters()
	c := core.NewJobParametersBuilder().
		AddLong("run.id", 2).
		AddString("date", "2024-01-01").
		ToJobParameters()

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.Equal(t, 2, a.IdentifyingParameters().Len())
}

func TestJobParameters_JSONRoundTripPreservesTypes(t *testing.T) {
	when := time.Date(2024, 1, 1, 3, 4, 5, 0, time.UTC)
	params := core.NewJobParametersBuilder().
		AddString("target", "/tmp").
		AddLong("run.id", 42).
		AddDouble("ratio", 0.5).
		AddDate("when", when).
		AddBool("dryRun", false).
		AddNonIdentifyingString("note", "n").
		ToJobParameters()

	data, err := json.Marshal(params)
	require.NoError(t, err)

	var restored core.JobParameters
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.True(t, params.Equal(restored))
	assert.Equal(t, params.Keys(), restored.Keys())
	assert.Equal(t, params.Hash(), restored.Hash())
	got, ok := restored.GetDate("when")
	require.True(t, ok)
	assert.True(t, when.Equal(got))
}

func TestJobParametersBuilder_RemoveAndOverlay(t *testing.T) {
	base := core.NewJobParametersBuilder().AddLong("run.id", 5).AddString("date", "old").ToJobParameters()
	overlay := core.NewJobParametersBuilder().AddString("date", "new").AddString("region", "ap").ToJobParameters()

	merged := core.NewJobParametersBuilderFrom(base).AddJobParameters(overlay).ToJobParameters()
	assert.Equal(t, []string{"run.id", "date", "region"}, merged.Keys())
	date, _ := merged.GetString("date")
	assert.Equal(t, "new", date)

	removed := core.NewJobParametersBuilderFrom(merged).Remove("date").Remove("missing").ToJobParameters()
	assert.Equal(t, []string{"run.id", "region"}, removed.Keys())
}

func TestParseJobParameters(t *testing.T) {
	params, err := core.ParseJobParameters(map[string]string{
		"date":   "date:2024-01-01",
		"limit":  "long:10",
		"ratio":  "double:1.5",
		"dryRun": "boolean:true",
		"target": "/tmp",
		"note":   "hello(nonidentifying)",
		"url":    "http://example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"date", "dryRun", "limit", "note", "ratio", "target", "url"}, params.Keys())
	limit, _ := params.GetLong("limit")
	assert.Equal(t, int64(10), limit)
	dryRun, _ := params.GetBool("dryRun")
	assert.True(t, dryRun)
	url, _ := params.GetString("url")
	assert.Equal(t, "http://example.com", url)
	note, _ := params.Get("note")
	assert.False(t, note.Identifying)
	date, _ := params.GetDate("date")
	assert.Equal(t, 2024, date.Year())

	_, err = core.ParseJobParameters(map[string]string{"limit": "long:abc"})
	assert.Error(t, err)
}

func TestDefaultJobParametersValidator(t *testing.T) {
	v := core.NewDefaultJobParametersValidator([]string{"date"}, []string{"run.id"})

	ok := core.NewJobParametersBuilder().AddString("date", "2024-01-01").AddLong("run.id", 1).ToJobParameters()
	assert.NoError(t, v.Validate(ok))

	missing := core.NewJobParametersBuilder().AddLong("run.id", 1).ToJobParameters()
	assert.ErrorIs(t, v.Validate(missing), exception.ErrInvalidJobParameters)

	unknown := core.NewJobParametersBuilder().AddString("date", "x").AddString("zone", "y").ToJobParameters()
	err := v.Validate(unknown)
	assert.ErrorIs(t, err, exception.ErrInvalidJobParameters)
	assert.Contains(t, err.Error(), "zone")

	open := core.NewDefaultJobParametersValidator([]string{"date"}, nil)
	assert.NoError(t, open.Validate(unknown))
}
