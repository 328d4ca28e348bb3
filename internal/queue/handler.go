package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/caretoken/internal/audit"
	"github.com/wolfman30/caretoken/internal/calendar"
	"github.com/wolfman30/caretoken/internal/tenancy"
	"github.com/wolfman30/caretoken/pkg/logging"
)

const redactedName = "Patient"

// Handler exposes booking, status and queue endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a queue HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// AppointmentResponse is the public projection of a token.
type AppointmentResponse struct {
	ID                   uuid.UUID  `json:"id"`
	TokenNumber          int        `json:"token_number"`
	TokenDisplay         string     `json:"token_display"`
	EstimatedWaitSeconds int        `json:"estimated_wait_seconds"`
	State                State      `json:"state"`
	ScheduledStart       time.Time  `json:"scheduled_start"`
	IsEmergency          bool       `json:"is_emergency"`
	IsPhoneBooking       bool       `json:"is_phone_booking"`
	IsLate               bool       `json:"is_late"`
	PatientName          string     `json:"patient_name"`
	PatientAge           *int       `json:"patient_age"`
	StartedAt            *time.Time `json:"started_at"`
	EndedAt              *time.Time `json:"ended_at"`
	DurationSeconds      *int       `json:"duration_seconds"`
}

// SlotResponse describes the active schedule window.
type SlotResponse struct {
	ScheduleID uuid.UUID          `json:"schedule_id"`
	StartTime  calendar.TimeOfDay `json:"start_time"`
	EndTime    calendar.TimeOfDay `json:"end_time"`
}

// QueueResponse is the body of GET /doctors/{doctorID}/queue.
type QueueResponse struct {
	DoctorID uuid.UUID             `json:"doctor_id"`
	Date     calendar.Date         `json:"date"`
	Queue    []AppointmentResponse `json:"queue"`
	OnHold   []AppointmentResponse `json:"on_hold"`
	Slot     *SlotResponse         `json:"slot"`
}

// Project renders an item for viewer. Patient identity is only shown to staff
// of the clinic and to the patient who owns the appointment.
func Project(item Item, viewer tenancy.Principal) AppointmentResponse {
	a := item.Appointment
	resp := AppointmentResponse{
		ID:                   a.ID,
		TokenNumber:          a.TokenNumber,
		TokenDisplay:         a.TokenDisplay(),
		EstimatedWaitSeconds: item.WaitSeconds,
		State:                a.State,
		ScheduledStart:       a.ScheduledStart,
		IsEmergency:          a.IsEmergency,
		IsPhoneBooking:       a.IsPhoneBooking,
		IsLate:               a.IsLate,
		PatientName:          redactedName,
		StartedAt:            a.StartedAt,
		EndedAt:              a.EndedAt,
		DurationSeconds:      a.DurationSeconds,
	}
	if a.Patient != nil && canSeePatient(viewer, a) {
		resp.PatientName = a.Patient.Name
		resp.PatientAge = a.Patient.Age
	}
	return resp
}

func canSeePatient(viewer tenancy.Principal, a *Appointment) bool {
	if viewer.IsStaffOf(a.TenantID) {
		return true
	}
	return viewer.Kind == tenancy.Patient && viewer.Phone != "" && viewer.Phone == a.Patient.Phone
}

func projectAll(items []Item, viewer tenancy.Principal) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for _, it := range items {
		out = append(out, Project(it, viewer))
	}
	return out
}

func queueResponse(view *View, viewer tenancy.Principal) QueueResponse {
	resp := QueueResponse{
		DoctorID: view.Doctor.ID,
		Date:     view.Date,
		Queue:    projectAll(view.Queue, viewer),
		OnHold:   projectAll(view.OnHold, viewer),
	}
	if view.Slot != nil {
		resp.Slot = &SlotResponse{
			ScheduleID: view.Slot.ID,
			StartTime:  view.Slot.StartTime,
			EndTime:    view.Slot.EndTime,
		}
	}
	return resp
}

// BookPatient handles POST /appointments/patient.
func (h *Handler) BookPatient(w http.ResponseWriter, r *http.Request) {
	h.book(w, r, SourcePatient)
}

// BookAdmin handles POST /appointments/admin.
func (h *Handler) BookAdmin(w http.ResponseWriter, r *http.Request) {
	h.book(w, r, SourceAdmin)
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request, source string) {
	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DoctorID == uuid.Nil {
		writeJSONError(w, http.StatusBadRequest, "doctor_id required")
		return
	}
	item, err := h.service.Book(r.Context(), source, req)
	if err != nil {
		h.writeServiceError(w, "book", err)
		return
	}
	writeJSON(w, http.StatusCreated, Project(*item, tenancy.PrincipalFromContext(r.Context())))
}

// GetAppointment handles GET /appointments/{appointmentID}.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "appointmentID")
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, Project(*item, tenancy.PrincipalFromContext(r.Context())))
}

// UpdateStatus handles PATCH /appointments/{appointmentID}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "appointmentID")
	if !ok {
		return
	}
	var req StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	item, err := h.service.UpdateStatus(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, "update status", err)
		return
	}
	writeJSON(w, http.StatusOK, Project(*item, tenancy.PrincipalFromContext(r.Context())))
}

// ToggleHold handles POST /appointments/{appointmentID}/hold.
func (h *Handler) ToggleHold(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "appointmentID")
	if !ok {
		return
	}
	item, err := h.service.ToggleHold(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "toggle hold", err)
		return
	}
	writeJSON(w, http.StatusOK, Project(*item, tenancy.PrincipalFromContext(r.Context())))
}

// History handles GET /appointments/{appointmentID}/history?action=a,b.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "appointmentID")
	if !ok {
		return
	}
	var actions []audit.Action
	if raw := r.URL.Query().Get("action"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				actions = append(actions, audit.Action(part))
			}
		}
	}
	entries, err := h.service.History(r.Context(), id, actions)
	if err != nil {
		h.writeServiceError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Queue handles GET /doctors/{doctorID}/queue?date=YYYY-MM-DD&status=a,b.
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseID(w, r, "doctorID")
	if !ok {
		return
	}
	date, err := parseDateParam(r)
	if err != nil {
		h.writeServiceError(w, "queue", err)
		return
	}
	filter, err := ParseStates(r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, "queue", err)
		return
	}
	view, err := h.service.Queue(r.Context(), doctorID, date, filter)
	if err != nil {
		h.writeServiceError(w, "queue", err)
		return
	}
	writeJSON(w, http.StatusOK, queueResponse(view, tenancy.PrincipalFromContext(r.Context())))
}

// QueueStatus handles GET /doctors/{doctorID}/queue/status?date=YYYY-MM-DD.
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseID(w, r, "doctorID")
	if !ok {
		return
	}
	date, err := parseDateParam(r)
	if err != nil {
		h.writeServiceError(w, "queue status", err)
		return
	}
	summary, err := h.service.Status(r.Context(), doctorID, date)
	if err != nil {
		h.writeServiceError(w, "queue status", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func parseDateParam(r *http.Request) (calendar.Date, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return calendar.Date{}, nil
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return calendar.Date{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return d, nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tenancy.ErrUnauthenticated):
		writeJSONError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, tenancy.ErrForbidden), errors.Is(err, ErrCrossTenant):
		writeJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrTokenConflict):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrIntegrity):
		h.logger.Error("queue integrity failure", "op", op, "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Error("queue request failed", "op", op, "error", err)
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
