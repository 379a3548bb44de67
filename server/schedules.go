package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
	"github.com/buzzsnip/buzzsnip/pulse/schedule"
)

// scheduleView is a schedule as the dashboard expects it. The legacy
// frequency/time/days names mirror cadence/time_of_day/weekdays.
type scheduleView struct {
	*schedule.Schedule
	Frequency cadence.Cadence `json:"frequency"`
	Time      string          `json:"time"`
	Days      []string        `json:"days"`
}

func viewOf(s *schedule.Schedule) scheduleView {
	return scheduleView{Schedule: s, Frequency: s.Cadence, Time: s.TimeOfDay, Days: s.Weekdays}
}

func viewsOf(list []*schedule.Schedule) []scheduleView {
	views := make([]scheduleView, 0, len(list))
	for _, s := range list {
		views = append(views, viewOf(s))
	}
	return views
}

// createScheduleRequest accepts the current field names and the legacy ones.
// Current names win when both are present.
type createScheduleRequest struct {
	schedule.Spec
	Frequency cadence.Cadence `json:"frequency,omitempty"`
	Time      string          `json:"time,omitempty"`
	Days      []string        `json:"days,omitempty"`
}

func (r createScheduleRequest) spec() schedule.Spec {
	spec := r.Spec
	if spec.Cadence == "" {
		spec.Cadence = r.Frequency
	}
	if spec.TimeOfDay == "" {
		spec.TimeOfDay = r.Time
	}
	if spec.Weekdays == nil {
		spec.Weekdays = r.Days
	}
	return spec
}

type updateScheduleRequest struct {
	schedule.Patch
	Frequency *cadence.Cadence `json:"frequency,omitempty"`
	Time      *string          `json:"time,omitempty"`
	Days      *[]string        `json:"days,omitempty"`
}

func (r updateScheduleRequest) patch() schedule.Patch {
	p := r.Patch
	if p.Cadence == nil {
		p.Cadence = r.Frequency
	}
	if p.TimeOfDay == nil {
		p.TimeOfDay = r.Time
	}
	if p.Weekdays == nil {
		p.Weekdays = r.Days
	}
	return p
}

// HandleListSchedules handles GET /api/schedules
func (s *Server) HandleListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Schedules.List(r.Context())
	if err != nil {
		s.writeFailure(w, r, err, "list schedules")
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(list))
}

// HandleCreateSchedule handles POST /api/schedules
func (s *Server) HandleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err, "create schedule")
		return
	}

	sched, err := s.deps.Schedules.Create(r.Context(), req.spec())
	if err != nil {
		s.writeFailure(w, r, err, "create schedule")
		return
	}

	logger.AddPulseSymbol(s.logger).Infow("Schedule created via API",
		logger.FieldScheduleID, sched.ID,
		logger.FieldNextRun, sched.NextRun)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":  true,
		"schedule": viewOf(sched),
	})
}

// HandleGetSchedule handles GET /api/schedules/{id}
func (s *Server) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.deps.Schedules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err, "get schedule")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sched))
}

// HandleUpdateSchedule handles PUT /api/schedules/{id}
func (s *Server) HandleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req updateScheduleRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err, "update schedule")
		return
	}

	sched, err := s.deps.Schedules.Update(r.Context(), chi.URLParam(r, "id"), req.patch())
	if err != nil {
		s.writeFailure(w, r, err, "update schedule")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"schedule": viewOf(sched),
	})
}

// HandleDeleteSchedule handles DELETE /api/schedules/{id}
func (s *Server) HandleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Schedules.Delete(r.Context(), id); err != nil {
		s.writeFailure(w, r, err, "delete schedule")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Schedule " + id + " deleted",
	})
}

// HandleScheduleStatus handles PATCH /api/schedules/{id}/status with {"status": "active"|"paused"}
func (s *Server) HandleScheduleStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status schedule.Status `json:"status"`
	}
	if err := readJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err, "update schedule status")
		return
	}

	sched, err := s.deps.Schedules.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeFailure(w, r, err, "update schedule status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"schedule": viewOf(sched),
	})
}

// HandleRunSchedule handles POST /api/schedules/{id}/run
func (s *Server) HandleRunSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.deps.Schedules.RunNow(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, errors.WithDetailf(err, "Schedule ID: %s", id), "run schedule")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"job_id":  job.ID,
		"message": "Schedule triggered",
	})
}
