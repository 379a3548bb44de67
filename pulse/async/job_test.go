package async

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buzzsnip/buzzsnip/errors"
)

var testNow = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

func TestCanTransition(t *testing.T) {
	all := []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}
	allowed := map[[2]JobStatus]bool{
		{JobStatusQueued, JobStatusProcessing}:    true,
		{JobStatusQueued, JobStatusFailed}:        true,
		{JobStatusProcessing, JobStatusCompleted}: true,
		{JobStatusProcessing, JobStatusFailed}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]JobStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestJobStatusPredicates(t *testing.T) {
	assert.True(t, JobStatusQueued.IsActive())
	assert.True(t, JobStatusProcessing.IsActive())
	assert.False(t, JobStatusCompleted.IsActive())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())

	assert.True(t, IsValidStatus("processing"))
	assert.False(t, IsValidStatus("running"))
	assert.True(t, IsValidKind("face"))
	assert.False(t, IsValidKind("thumbnail"))
}

func TestNewJob(t *testing.T) {
	local := time.Date(2024, 3, 6, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	job := NewJob(KindAudio, Params{Script: "hello", VoiceType: "warm", PersonaID: "p1"}, "", local)

	assert.Len(t, job.ID, 36)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, time.UTC, job.CreatedAt.Location())
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	other := NewJob(KindAudio, Params{}, "", local)
	assert.NotEqual(t, job.ID, other.ID)
}

func TestJobLifecycle(t *testing.T) {
	job := NewJob(KindFace, Params{PersonaID: "p1"}, "", testNow)

	require.NoError(t, job.Start(testNow.Add(time.Second)))
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, testNow.Add(time.Second), *job.StartedAt)

	require.NoError(t, job.UpdateProgress(40, testNow.Add(2*time.Second)))
	require.NoError(t, job.Complete(Result{"face_url": "/media/face.mp4"}, testNow.Add(3*time.Second)))

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "/media/face.mp4", job.Result["face_url"])
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, testNow.Add(3*time.Second), job.UpdatedAt)
}

func TestJobTerminalStatesAreFinal(t *testing.T) {
	job := NewJob(KindVideo, Params{}, "", testNow)
	require.NoError(t, job.Fail("bad input", testNow))
	assert.Equal(t, "bad input", job.Error)

	err := job.Start(testNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
	assert.True(t, errors.IsInvalidRequestError(err), "illegal transitions are validation-class")
	assert.Equal(t, JobStatusFailed, job.Status)

	assert.Error(t, job.Complete(nil, testNow))
	assert.Error(t, job.Fail("again", testNow))
	assert.Equal(t, "bad input", job.Error)
}

func TestJobCannotCompleteFromQueued(t *testing.T) {
	job := NewJob(KindAudio, Params{}, "", testNow)
	err := job.Complete(Result{}, testNow)
	require.Error(t, err)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Contains(t, errors.FlattenDetails(err), "Current status: queued")
}

func TestUpdateProgress(t *testing.T) {
	job := NewJob(KindAutomated, Params{}, "", testNow)
	assert.Error(t, job.UpdateProgress(10, testNow), "queued jobs have no progress")

	require.NoError(t, job.Start(testNow))

	tests := []struct {
		name string
		in   int
		want int
	}{
		{"raise", 30, 30},
		{"lower is ignored", 10, 30},
		{"clamped high", 150, 100},
		{"clamped low", -5, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, job.UpdateProgress(tt.in, testNow))
			assert.Equal(t, tt.want, job.Progress)
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	upload := true
	job := NewJob(KindAutomated, Params{Platforms: []string{"youtube"}, AutoUpload: &upload}, "schedule_001", testNow)
	require.NoError(t, job.Start(testNow))
	require.NoError(t, job.Complete(Result{"video_url": "a"}, testNow))

	c := job.Clone()
	c.Platforms[0] = "tiktok"
	*c.AutoUpload = false
	c.Result["video_url"] = "b"
	*c.StartedAt = testNow.Add(time.Hour)

	assert.Equal(t, "youtube", job.Platforms[0])
	assert.True(t, *job.AutoUpload)
	assert.Equal(t, "a", job.Result["video_url"])
	assert.Equal(t, testNow, *job.StartedAt)

	var nilJob *Job
	assert.Nil(t, nilJob.Clone())
}

// The API returns a job as one flat record: parameters sit beside the status fields.
func TestJobJSONShape(t *testing.T) {
	job := NewJob(KindAudio, Params{Script: "hi", VoiceType: "calm", PersonaID: "p1"}, "", testNow)

	data, err := json.Marshal(job)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Equal(t, job.ID, fields["job_id"])
	assert.Equal(t, "audio", fields["kind"])
	assert.Equal(t, "queued", fields["status"])
	assert.Equal(t, "hi", fields["script"])
	assert.Equal(t, "calm", fields["voice_type"])
	assert.NotContains(t, fields, "schedule_id")
	assert.NotContains(t, fields, "completed_at")
	assert.NotContains(t, fields, "Params")
}

func TestResultEncoding(t *testing.T) {
	s, err := MarshalResult(nil)
	require.NoError(t, err)
	assert.Nil(t, s, "nil results store as NULL")

	r, err := UnmarshalResult("")
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = UnmarshalResult("{not json")
	assert.Error(t, err)

	_, err = UnmarshalParams("[1,2]")
	assert.Error(t, err)
}
