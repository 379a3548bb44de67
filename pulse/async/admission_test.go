package async

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func jobsWith(statuses ...JobStatus) []*Job {
	jobs := make([]*Job, 0, len(statuses))
	for _, s := range statuses {
		jobs = append(jobs, &Job{Status: s})
	}
	return jobs
}

func TestCanAdmit(t *testing.T) {
	tests := []struct {
		name    string
		jobs    []*Job
		ceiling int
		want    bool
	}{
		{"empty", nil, 3, true},
		{"two processing", jobsWith(JobStatusProcessing, JobStatusProcessing), 3, true},
		{"at ceiling", jobsWith(JobStatusQueued, JobStatusProcessing, JobStatusProcessing), 3, false},
		{"terminal jobs do not count", jobsWith(JobStatusCompleted, JobStatusFailed, JobStatusFailed, JobStatusProcessing), 2, true},
		{"zero ceiling admits nothing", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAdmit(tt.jobs, tt.ceiling))
		})
	}
}

func TestCountActiveSkipsNil(t *testing.T) {
	jobs := append(jobsWith(JobStatusQueued), nil)
	assert.Equal(t, 1, CountActive(jobs))
}
