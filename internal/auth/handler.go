package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/wolfman30/caretoken/pkg/logging"
)

type ctxKey string

const sessionCtxKey ctxKey = "caretoken.session"

// WithSession stores the verified session in context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, s)
}

// SessionFromContext returns the verified session of the request, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionCtxKey).(*Session)
	return s, ok && s != nil
}

// Handler exposes session endpoints.
type Handler struct {
	sessions *Sessions
	logger   *logging.Logger
}

// NewHandler creates a session handler.
func NewHandler(sessions *Sessions, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// Logout handles POST /auth/logout by revoking the caller's session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no active session"})
		return
	}
	if err := h.sessions.Revoke(r.Context(), session.ID); err != nil {
		h.logger.Error("logout failed", "session_id", session.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
