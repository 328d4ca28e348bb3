package clinic

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/caretoken/internal/tenancy"
	"github.com/wolfman30/caretoken/pkg/logging"
)

// Handler provides HTTP endpoints for clinic settings.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a new clinic settings HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// GetSettings returns the clinic settings for an org.
// GET /clinics/{orgID}/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseOrgID(w, r)
	if !ok {
		return
	}

	settings, err := h.store.Get(r.Context(), orgID.String())
	if err != nil {
		h.logger.Error("failed to get clinic settings", "org_id", orgID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettingsRequest is the request body for updating clinic settings.
type UpdateSettingsRequest struct {
	Name     string `json:"name,omitempty"`
	Slug     string `json:"slug,omitempty"`
	City     string `json:"city,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// UpdateSettings applies a partial update to the clinic settings.
// PUT /clinics/{orgID}/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseOrgID(w, r)
	if !ok {
		return
	}
	if err := tenancy.PrincipalFromContext(r.Context()).RequireAdminOf(orgID); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, tenancy.ErrUnauthenticated) {
			status = http.StatusUnauthorized
		}
		writeJSONError(w, status, err.Error())
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	settings, err := h.store.Get(r.Context(), orgID.String())
	if err != nil {
		h.logger.Error("failed to get clinic settings", "org_id", orgID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if req.Name != "" {
		settings.Name = req.Name
	}
	if req.Slug != "" {
		settings.Slug = req.Slug
	}
	if req.City != "" {
		settings.City = req.City
	}
	if req.Timezone != "" {
		settings.Timezone = req.Timezone
	}

	if err := h.store.Set(r.Context(), settings); err != nil {
		if errors.Is(err, ErrInvalidSettings) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to save clinic settings", "org_id", orgID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	h.logger.Info("clinic settings updated", "org_id", orgID, "timezone", settings.Timezone)
	writeJSON(w, http.StatusOK, settings)
}

func parseOrgID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid org id")
		return uuid.Nil, false
	}
	return orgID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
