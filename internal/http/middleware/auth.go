package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/caretoken/internal/auth"
	"github.com/wolfman30/caretoken/internal/tenancy"
	"github.com/wolfman30/caretoken/pkg/logging"
)

// SessionResolver verifies bearer tokens.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*auth.Session, error)
}

// Authenticate resolves the caller principal once per request. Requests without
// an Authorization header continue as anonymous; a malformed, expired or
// revoked bearer token is rejected with 401.
func Authenticate(sessions SessionResolver, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r.WithContext(tenancy.WithPrincipal(r.Context(), tenancy.AnonymousPrincipal())))
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, "malformed authorization header")
				return
			}
			session, err := sessions.Resolve(r.Context(), strings.TrimSpace(token))
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrSessionRevoked) {
					logger.Error("session lookup failed", "path", r.URL.Path, "error", err)
				}
				writeError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			ctx := tenancy.WithPrincipal(r.Context(), session.Principal)
			ctx = auth.WithSession(ctx, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated rejects anonymous callers.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenancy.PrincipalFromContext(r.Context()).Kind == tenancy.Anonymous {
			writeError(w, http.StatusUnauthorized, tenancy.ErrUnauthenticated.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff rejects callers that are not clinic staff. Tenant checks happen
// in the services, which know which clinic a resource belongs to.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch tenancy.PrincipalFromContext(r.Context()).Kind {
		case tenancy.Staff:
			next.ServeHTTP(w, r)
		case tenancy.Anonymous:
			writeError(w, http.StatusUnauthorized, tenancy.ErrUnauthenticated.Error())
		default:
			writeError(w, http.StatusForbidden, tenancy.ErrForbidden.Error())
		}
	})
}

// DenyStaff keeps staff off patient-only routes.
func DenyStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenancy.PrincipalFromContext(r.Context()).Kind == tenancy.Staff {
			writeError(w, http.StatusForbidden, "staff must use the admin booking endpoint")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
