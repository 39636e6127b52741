package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wonny/salespulse/internal/dashboard"
	"github.com/wonny/salespulse/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// dashboards are served from their own origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream pushes every tick of a session over a WebSocket
// GET /api/sessions/{id}/stream
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		h.respondReplayError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	sub := h.hub.Subscribe(sess.ID())

	opts := realtime.StreamOptions{KeepAlive: sess.Touch}
	if tick, ok := sess.LatestTick(); ok {
		// same payload shape as a tick so clients need one decoder
		msg, err := realtime.NewMessage(realtime.MessageSnapshot, sess.ID(), dashboard.PresentTick(tick))
		if err == nil {
			opts.Initial = &msg
		}
	}

	h.logger.WithSession(sess.ID()).Debug("Stream client connected")
	realtime.Stream(r.Context(), conn, h.hub, sub, opts, h.logger)
}
