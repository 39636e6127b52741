package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/salespulse/pkg/logger"
)

// Ping/Pong settings
const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// StreamOptions customise one client connection
type StreamOptions struct {
	// Initial is written before any tick, typically the last snapshot
	Initial *Message
	// KeepAlive runs on every ping so an open stream counts as activity
	KeepAlive func()
}

// Stream pumps sub's messages to conn until the client leaves, the
// subscription closes or ctx is done
// ⭐ SSOT: WebSocket read/write deadlines live here
func Stream(ctx context.Context, conn *websocket.Conn, hub *Hub, sub *Subscriber, opts StreamOptions, log *logger.Logger) {
	log = log.WithSession(sub.SessionID())
	defer hub.Unsubscribe(sub)
	defer conn.Close()

	// reader: only pongs and the close frame matter
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if opts.Initial != nil {
		data, err := json.Marshal(opts.Initial)
		if err == nil {
			err = write(conn, data)
		}
		if err != nil {
			log.WithError(err).Warn("Failed to send initial snapshot")
			return
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			closeFrame(conn, websocket.CloseGoingAway, "server shutting down")
			return

		case <-clientGone:
			log.Debug("Stream client disconnected")
			return

		case data, ok := <-sub.C():
			if !ok {
				closeFrame(conn, websocket.CloseNormalClosure, "session closed")
				return
			}
			if err := write(conn, data); err != nil {
				log.WithError(err).Debug("Stream write failed")
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				log.WithError(err).Debug("Failed to send ping")
				return
			}
			if opts.KeepAlive != nil {
				opts.KeepAlive()
			}
		}
	}
}

func write(conn *websocket.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func closeFrame(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(writeWait))
}
