package realtime

import (
	"encoding/json"
	"time"
)

// MessageType tags every frame pushed to stream clients
type MessageType string

const (
	// MessageTick carries a fresh metrics snapshot and the session status
	MessageTick MessageType = "tick"
	// MessageSnapshot is the last known snapshot, sent once on connect
	MessageSnapshot MessageType = "snapshot"
	// MessageReset tells clients the session restarted from row 0
	MessageReset MessageType = "reset"
	// MessageClosed tells clients the session is gone
	MessageClosed MessageType = "closed"
)

// Message is the JSON envelope written to WebSocket clients
// ⭐ SSOT: stream wire format
type Message struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id"`
	SentAt    time.Time       `json:"sent_at"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes data into an envelope
func NewMessage(typ MessageType, sessionID string, data interface{}) (Message, error) {
	msg := Message{
		Type:      typ,
		SessionID: sessionID,
		SentAt:    time.Now().UTC(),
	}
	if data == nil {
		return msg, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	msg.Data = raw
	return msg, nil
}

// HubStats reports subscriber counts
type HubStats struct {
	Sessions    int   `json:"sessions"`
	Subscribers int   `json:"subscribers"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
}
