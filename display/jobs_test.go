package display

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/teranos/jobpulse/pulse/jobs"
	"github.com/teranos/jobpulse/pulse/poll"
)

func decodeJobs(t *testing.T, data string) jobs.Snapshot {
	t.Helper()
	var list []jobs.Job
	require.NoError(t, json.Unmarshal([]byte(data), &list))
	return jobs.NewSnapshot(list, time.Now())
}

func TestRecords_KeepBusinessFields(t *testing.T) {
	s := decodeJobs(t, `[{"id":1,"status":"queued","name":"train","epochs":10}]`)

	recs := Records(s)
	require.Len(t, recs, 1)
	assert.Equal(t, "1", recs[0]["id"])
	assert.Equal(t, "queued", recs[0]["status"])
	assert.Equal(t, "train", recs[0]["name"])
	assert.Equal(t, float64(10), recs[0]["epochs"])
}

func TestRenderJobs_JSON(t *testing.T) {
	s := decodeJobs(t, `[{"id":"a","status":"running"}]`)

	var buf bytes.Buffer
	require.NoError(t, RenderJobs(&buf, s, FormatJSON, nil))

	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "running", out[0]["status"])
}

func TestRenderJobs_YAML(t *testing.T) {
	s := decodeJobs(t, `[{"id":"a","status":"queued","name":"x"}]`)

	var buf bytes.Buffer
	require.NoError(t, RenderJobs(&buf, s, FormatYAML, nil))

	var out []map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "x", out[0]["name"])
}

func TestRenderJobs_Table(t *testing.T) {
	s := decodeJobs(t, `[{"id":"a","status":"queued","name":"resnet"},{"id":"b","status":"running"}]`)

	var buf bytes.Buffer
	require.NoError(t, RenderJobs(&buf, s, FormatTable, []string{"name"}))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "resnet")
	assert.Contains(t, out, "running")
}

func TestRenderJobs_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderJobs(&buf, jobs.NewSnapshot(nil, time.Now()), FormatTable, nil))
	assert.Contains(t, buf.String(), "No jobs")
}

func TestRenderJobs_UnknownFormat(t *testing.T) {
	err := RenderJobs(&bytes.Buffer{}, jobs.NewSnapshot(nil, time.Now()), "xml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestSummaryLine(t *testing.T) {
	state := poll.State{
		Snapshot:  jobs.NewSnapshot([]jobs.Job{jobs.New("1", jobs.StatusRunning), jobs.New("2", jobs.StatusQueued)}, time.Now()),
		Status:    jobs.RefreshError,
		LastError: "boom",
	}

	line := SummaryLine(state)
	assert.Contains(t, line, "2 jobs")
	assert.Contains(t, line, "1 running")
	assert.Contains(t, line, "1 queued")
	assert.Contains(t, line, "boom")
}

func TestMarshalJSON_ScriptCaller(t *testing.T) {
	t.Setenv(CallerEnv, "script")
	data, err := MarshalJSON(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}
