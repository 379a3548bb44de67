package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/async"
)

// HandleGenerate handles POST /api/generate, the automated pipeline
func (s *Server) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, async.KindAutomated)
}

// HandleGenerateAudio handles POST /api/generate-audio
func (s *Server) HandleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, async.KindAudio)
}

// HandleGenerateFace handles POST /api/generate-face
func (s *Server) HandleGenerateFace(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, async.KindFace)
}

// HandleGenerateVideo handles POST /api/generate-video
func (s *Server) HandleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, async.KindVideo)
}

// submit admits a job of kind. With ?wait=true it holds the request until the
// job is terminal: 200 with the result on completion, 503 or 502 with the job
// on failure, and 202 if the wait timeout passes first.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, kind async.Kind) {
	action := "submit " + string(kind) + " job"

	var params async.Params
	if err := readJSON(w, r, &params); err != nil {
		s.writeFailure(w, r, err, action)
		return
	}

	job, err := s.deps.Jobs.Submit(r.Context(), async.JobRequest{Kind: kind, Params: params})
	if err != nil {
		s.writeFailure(w, r, err, action)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		writeJSON(w, http.StatusAccepted, queuedResponse(job))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.WaitTimeout)
	defer cancel()
	done, err := s.deps.Jobs.Await(ctx, job.ID)
	if err != nil {
		if ctx.Err() != nil && r.Context().Err() == nil {
			logger.LoggerFromContext(r.Context(), s.logger).Infow("Wait timed out, job continues",
				logger.FieldJobID, job.ID, "timeout", s.deps.WaitTimeout)
			if done == nil {
				done = job
			}
			writeJSON(w, http.StatusAccepted, queuedResponse(done))
			return
		}
		s.writeFailure(w, r, err, action)
		return
	}

	if done.Status == async.JobStatusFailed {
		writeJSON(w, failedJobStatus(done), map[string]interface{}{
			"success": false,
			"error":   done.Error,
			"job":     done,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"job":     done,
	})
}

// failedJobStatus answers 503 when the generation service could not be
// reached and 502 for every other failure.
func failedJobStatus(job *async.Job) int {
	if job.ErrorKind == async.DispatchUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func queuedResponse(job *async.Job) map[string]interface{} {
	return map[string]interface{}{
		"success": true,
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "Video generation started",
	}
}

// HandleListJobs handles GET /api/jobs with optional ?status=, ?schedule_id= and ?limit=
func (s *Server) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := async.ListOptions{ScheduleID: q.Get("schedule_id")}

	if raw := q.Get("status"); raw != "" {
		if !async.IsValidStatus(raw) {
			s.writeFailure(w, r, errors.NewFieldError("status", "unknown job status %q", raw), "list jobs")
			return
		}
		status := async.JobStatus(raw)
		opts.Status = &status
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeFailure(w, r, errors.NewFieldError("limit", "must be a positive integer, got %q", raw), "list jobs")
			return
		}
		opts.Limit = n
	}

	jobs, err := s.deps.Jobs.List(r.Context(), opts)
	if err != nil {
		s.writeFailure(w, r, err, "list jobs")
		return
	}
	if jobs == nil {
		jobs = []*async.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// HandleGetJob handles GET /api/jobs/{id}
func (s *Server) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err, "get job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
