package doctors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/caretoken/internal/calendar"
	"github.com/wolfman30/caretoken/internal/tenancy"
	"github.com/wolfman30/caretoken/pkg/logging"
)

// Handler exposes doctor, schedule and slot endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a doctors HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// CreateDoctor handles POST /clinics/{orgID}/doctors.
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseID(w, r, "orgID")
	if !ok {
		return
	}
	var req CreateDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	doctor, err := h.service.CreateDoctor(r.Context(), orgID, req)
	if err != nil {
		h.writeServiceError(w, "create doctor", err)
		return
	}
	writeJSON(w, http.StatusCreated, doctor)
}

// ListDoctors handles GET /clinics/{orgID}/doctors.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseID(w, r, "orgID")
	if !ok {
		return
	}
	doctors, err := h.service.ListDoctors(r.Context(), orgID)
	if err != nil {
		h.writeServiceError(w, "list doctors", err)
		return
	}
	if doctors == nil {
		doctors = []*Doctor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctors": doctors})
}

// GetDoctor handles GET /doctors/{doctorID}.
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseID(w, r, "doctorID")
	if !ok {
		return
	}
	doctor, err := h.service.GetDoctor(r.Context(), doctorID)
	if err != nil {
		h.writeServiceError(w, "get doctor", err)
		return
	}
	writeJSON(w, http.StatusOK, doctor)
}

type updateDoctorRequest struct {
	ConsultDurationMinutes int `json:"consult_duration_minutes"`
}

// UpdateDoctor handles PATCH /doctors/{doctorID}.
func (h *Handler) UpdateDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseID(w, r, "doctorID")
	if !ok {
		return
	}
	var req updateDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	doctor, err := h.service.UpdateConsultDuration(r.Context(), doctorID, req.ConsultDurationMinutes)
	if err != nil {
		h.writeServiceError(w, "update doctor", err)
		return
	}
	writeJSON(w, http.StatusOK, doctor)
}

type consultingRequest struct {
	IsConsulting bool `json:"is_consulting"`
}

// SetConsulting handles PUT /doctors/{doctorID}/consulting.
func (h *Handler) SetConsulting(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseID(w, r, "doctorID")
	if !ok {
		return
	}
	var req consultingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	doctor, err := h.service.SetConsulting(r.Context(), doctorID, req.IsConsulting)
	if err != nil {
		h.writeServiceError(w, "set consulting", err)
		return
	}
	writeJSON(w, http.StatusOK, doctor)
}

// ReplaceSchedules handles POST /doctors/{doctorID}/schedules.
func (h *Handler) ReplaceSchedules(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseID(w, r, "doctorID")
	if !ok {
		return
	}
	var inputs []ScheduleInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	schedules, err := h.service.ReplaceSchedules(r.Context(), doctorID, inputs)
	if err != nil {
		h.writeServiceError(w, "replace schedules", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"schedules": schedules})
}

type updateScheduleRequest struct {
	StartTime *calendar.TimeOfDay `json:"start_time"`
	EndTime   *calendar.TimeOfDay `json:"end_time"`
}

// UpdateSchedule handles PATCH /schedules/{scheduleID}.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := parseID(w, r, "scheduleID")
	if !ok {
		return
	}
	var req updateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sched, err := h.service.UpdateSchedule(r.Context(), scheduleID, req.StartTime, req.EndTime)
	if err != nil {
		h.writeServiceError(w, "update schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// DeactivateSchedule handles POST /schedules/{scheduleID}/deactivate.
func (h *Handler) DeactivateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := parseID(w, r, "scheduleID")
	if !ok {
		return
	}
	sched, err := h.service.DeactivateSchedule(r.Context(), scheduleID)
	if err != nil {
		h.writeServiceError(w, "deactivate schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// WeeklySlots handles GET /doctors/{doctorID}/slots?start_date=YYYY-MM-DD.
func (h *Handler) WeeklySlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseID(w, r, "doctorID")
	if !ok {
		return
	}
	var start calendar.Date
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		parsed, err := calendar.ParseDate(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		start = parsed
	}
	week, err := h.service.WeeklySlots(r.Context(), doctorID, start)
	if err != nil {
		h.writeServiceError(w, "weekly slots", err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrScheduleNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidDuration),
		errors.Is(err, ErrInvalidSchedule), errors.Is(err, ErrScheduleOverlap):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tenancy.ErrUnauthenticated):
		writeJSONError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, tenancy.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, err.Error())
	default:
		h.logger.Error("doctors request failed", "op", op, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
