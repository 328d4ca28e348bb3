package queue

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/caretoken/internal/tenancy"
)

type liveInbound struct {
	Type string `json:"type"` // "ping"
}

type liveOutbound struct {
	Type  string `json:"type"` // "pong", "error"
	Error string `json:"error,omitempty"`
}

type liveSnapshot struct {
	Type   string                `json:"type"` // "snapshot"
	Status Summary               `json:"status"`
	Queue  []AppointmentResponse `json:"queue"`
	OnHold []AppointmentResponse `json:"on_hold"`
}

func snapshot(view *View, viewer tenancy.Principal) liveSnapshot {
	return liveSnapshot{
		Type:   "snapshot",
		Status: view.Summary,
		Queue:  projectAll(view.Queue, viewer),
		OnHold: projectAll(view.OnHold, viewer),
	}
}

// Live handles GET /doctors/{doctorID}/queue/live and streams a snapshot of
// the queue after every change.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseID(w, r, "doctorID")
	if !ok {
		return
	}
	date, err := parseDateParam(r)
	if err != nil {
		h.writeServiceError(w, "live", err)
		return
	}
	view, err := h.service.Queue(r.Context(), doctorID, date, nil)
	if err != nil {
		h.writeServiceError(w, "live", err)
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		h.serveLive(conn, r, doctorID, view)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveLive(conn *websocket.Conn, r *http.Request, doctorID uuid.UUID, first *View) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	viewer := tenancy.PrincipalFromContext(ctx)
	date := first.Date

	var sendMu sync.Mutex
	send := func(msg any) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		return websocket.JSON.Send(conn, msg)
	}

	h.service.metrics.LiveSubscriberDelta(1)
	defer h.service.metrics.LiveSubscriberDelta(-1)

	events, unsubscribe, _ := h.service.Subscribe(ctx, doctorID)
	defer unsubscribe()

	if err := send(snapshot(first, viewer)); err != nil {
		return
	}
	h.logger.Info("live queue: connection opened", "doctor_id", doctorID, "date", date.String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg liveInbound
			if err := websocket.JSON.Receive(conn, &msg); err != nil {
				h.logger.Debug("live queue: connection closed", "doctor_id", doctorID, "error", err)
				return
			}
			if msg.Type == "ping" {
				_ = send(liveOutbound{Type: "pong"})
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if evt.Date != date {
				continue
			}
			view, err := h.service.Queue(ctx, doctorID, date, nil)
			if err != nil {
				h.logger.Warn("live queue: refresh failed", "doctor_id", doctorID, "error", err)
				_ = send(liveOutbound{Type: "error", Error: "queue refresh failed"})
				continue
			}
			if err := send(snapshot(view, viewer)); err != nil {
				return
			}
		}
	}
}
