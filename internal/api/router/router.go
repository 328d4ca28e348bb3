package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/caretoken/internal/auth"
	"github.com/wolfman30/caretoken/internal/clinic"
	"github.com/wolfman30/caretoken/internal/doctors"
	httpmiddleware "github.com/wolfman30/caretoken/internal/http/middleware"
	"github.com/wolfman30/caretoken/internal/queue"
	"github.com/wolfman30/caretoken/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger   *logging.Logger
	Sessions httpmiddleware.SessionResolver

	AuthHandler    *auth.Handler
	DoctorsHandler *doctors.Handler
	QueueHandler   *queue.Handler
	// ClinicHandler is optional; settings routes are only mounted when set.
	ClinicHandler *clinic.Handler

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// BookingLimiter throttles public patient bookings when set.
	BookingLimiter *httpmiddleware.RateLimiter
	HealthChecks   map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Sessions == nil || cfg.DoctorsHandler == nil || cfg.QueueHandler == nil {
		panic("router: sessions, doctors and queue handlers required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.Authenticate(cfg.Sessions, cfg.Logger))

		d := cfg.DoctorsHandler
		q := cfg.QueueHandler

		api.Route("/appointments", func(ar chi.Router) {
			patient := ar.With(httpmiddleware.DenyStaff)
			if cfg.BookingLimiter != nil {
				patient = patient.With(httpmiddleware.RateLimit(cfg.BookingLimiter))
			}
			patient.Post("/patient", q.BookPatient)
			ar.With(httpmiddleware.RequireStaff).Post("/admin", q.BookAdmin)

			ar.Route("/{appointmentID}", func(one chi.Router) {
				one.Get("/", q.GetAppointment)
				one.Group(func(staff chi.Router) {
					staff.Use(httpmiddleware.RequireStaff)
					staff.Patch("/status", q.UpdateStatus)
					staff.Post("/hold", q.ToggleHold)
					staff.Get("/history", q.History)
				})
			})
		})

		api.Route("/doctors/{doctorID}", func(dr chi.Router) {
			dr.Get("/", d.GetDoctor)
			dr.Get("/slots", d.WeeklySlots)
			dr.Get("/queue", q.Queue)
			dr.Get("/queue/status", q.QueueStatus)
			dr.Get("/queue/live", q.Live)
			dr.Group(func(staff chi.Router) {
				staff.Use(httpmiddleware.RequireStaff)
				staff.Patch("/", d.UpdateDoctor)
				staff.Put("/consulting", d.SetConsulting)
				staff.Post("/schedules", d.ReplaceSchedules)
			})
		})

		api.Route("/schedules/{scheduleID}", func(sr chi.Router) {
			sr.Use(httpmiddleware.RequireStaff)
			sr.Patch("/", d.UpdateSchedule)
			sr.Post("/deactivate", d.DeactivateSchedule)
		})

		api.Route("/clinics/{orgID}", func(cr chi.Router) {
			cr.Get("/doctors", d.ListDoctors)
			cr.With(httpmiddleware.RequireStaff).Post("/doctors", d.CreateDoctor)
			if cfg.ClinicHandler != nil {
				cr.Get("/settings", cfg.ClinicHandler.GetSettings)
				cr.With(httpmiddleware.RequireStaff).Put("/settings", cfg.ClinicHandler.UpdateSettings)
			}
		})

		if cfg.AuthHandler != nil {
			api.With(httpmiddleware.RequireAuthenticated).Post("/auth/logout", cfg.AuthHandler.Logout)
		}
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]any{"status": "ok"}
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				continue
			}
			deps[name] = "ok"
		}
		if len(deps) > 0 {
			resp["dependencies"] = deps
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
