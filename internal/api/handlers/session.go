package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/salespulse/internal/dashboard"
	"github.com/wonny/salespulse/internal/realtime"
	"github.com/wonny/salespulse/internal/replay"
	"github.com/wonny/salespulse/pkg/logger"
)

// SessionHandler exposes the replay session lifecycle over HTTP
// ⭐ SSOT: session API handlers live here
type SessionHandler struct {
	manager *replay.Manager
	hub     *realtime.Hub
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *replay.Manager, hub *realtime.Hub, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		hub:     hub,
		logger:  log,
	}
}

// CreateSessionRequest optionally overrides the replay defaults
type CreateSessionRequest struct {
	Speed       *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
	UpdateEvery *int     `json:"update_every,omitempty" validate:"omitempty,gte=1"`
}

// SpeedRequest selects one of the offered speeds
type SpeedRequest struct {
	Speed *float64 `json:"speed" validate:"required,gte=0"`
}

// Create starts a new replay session
// POST /api/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.manager.Create(replay.CreateRequest{
		Speed:       req.Speed,
		UpdateEvery: req.UpdateEvery,
	})
	if err != nil {
		h.respondReplayError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, sess.Status())
}

// List returns every live session
// GET /api/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions":      h.manager.List(),
		"speed_options": h.manager.SpeedOptions(),
	})
}

// Get returns the counters of one session
// GET /api/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		h.respondReplayError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sess.Status())
}

// Metrics returns the latest dashboard snapshot
// GET /api/sessions/{id}/metrics
func (h *SessionHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		h.respondReplayError(w, err)
		return
	}

	snap, ok := sess.Latest()
	if !ok {
		// nothing accepted yet, the dashboard keeps its placeholders
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respondJSON(w, http.StatusOK, dashboard.Present(sess.ID(), snap))
}

// Reset restarts a session from the first row
// POST /api/sessions/{id}/reset
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Reset(mux.Vars(r)["id"])
	if err != nil {
		h.respondReplayError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// SetSpeed changes the replay pacing
// PUT /api/sessions/{id}/speed
func (h *SessionHandler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var req SpeedRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.manager.SetSpeed(mux.Vars(r)["id"], *req.Speed)
	if err != nil {
		h.respondReplayError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// Delete stops and removes a session
// DELETE /api/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Destroy(mux.Vars(r)["id"]); err != nil {
		h.respondReplayError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondReplayError maps replay sentinel errors to HTTP statuses
func (h *SessionHandler) respondReplayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, replay.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, replay.ErrTooManySessions):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, replay.ErrSpeedNotAllowed), errors.Is(err, replay.ErrInvalidSpeed):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.WithError(err).Error("Session request failed")
		respondError(w, http.StatusBadRequest, err.Error())
	}
}
