package datastore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBBoxValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		box  BBox
		want bool
	}{
		{"empty", BBox{}, true},
		{"nil", nil, true},
		{"ordered", BBox{0, 0, 10, 10}, true},
		{"degenerate point", BBox{5, 5, 5, 5}, true},
		{"inverted x", BBox{10, 0, 0, 10}, false},
		{"inverted y", BBox{0, 10, 10, 0}, false},
		{"too short", BBox{1, 2, 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.box.Valid())
		})
	}
}

func TestBBoxValueScan(t *testing.T) {
	t.Parallel()

	v, err := BBox(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v, "nil boxes are stored as an empty array, not NULL")

	v, err = BBox{1, 2, 3, 4}.Value()
	require.NoError(t, err)
	assert.Equal(t, "[1,2,3,4]", v)

	var b BBox
	require.NoError(t, b.Scan([]byte("[5,6,7,8]")))
	assert.Equal(t, BBox{5, 6, 7, 8}, b)

	require.NoError(t, b.Scan(nil))
	assert.Equal(t, BBox{}, b)

	require.NoError(t, b.Scan("null"))
	assert.Equal(t, BBox{}, b)

	require.Error(t, b.Scan(42))
	require.Error(t, b.Scan("{not json"))
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()
	assert.False(t, JobQueued.Terminal())
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
}

func TestJobJSONShape(t *testing.T) {
	t.Parallel()

	job := Job{JobID: "abc", JobStatus: JobQueued, MeetingID: 3}
	job.ensureCollections()

	data, err := json.Marshal(job)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"job_id": "abc",
		"job_status": "queued",
		"meeting_id": 3,
		"time_started": 0,
		"transcript_events": [],
		"ocr_events": [],
		"intelligent_notes": []
	}`, string(data))
}
