package replay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/salespulse/internal/dataset"
	"github.com/wonny/salespulse/pkg/config"
	"github.com/wonny/salespulse/pkg/logger"
)

// CreateRequest overrides the configured defaults for one session
type CreateRequest struct {
	Speed       *float64
	UpdateEvery *int
}

// Manager owns the registry of live sessions
// ⭐ SSOT: sessions are created, reset and destroyed only through here
type Manager struct {
	data     *dataset.Dataset
	defaults Options
	speeds   []float64
	max      int
	sink     Sink
	logger   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
	onRemove []func(id string)
	onReset  []func(id string)
}

// NewManager creates a manager replaying data with the configured defaults
func NewManager(data *dataset.Dataset, cfg *config.Config, sink Sink, log *logger.Logger) (*Manager, error) {
	opts, err := OptionsFromConfig(cfg.Replay)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		data:     data,
		defaults: opts,
		speeds:   cfg.Replay.SpeedOptions,
		max:      cfg.Session.MaxSessions,
		sink:     sink,
		logger:   log.WithComponent("replay"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}, nil
}

// OnRemove registers fn to run after a session is destroyed or evicted
func (m *Manager) OnRemove(fn func(id string)) {
	m.mu.Lock()
	m.onRemove = append(m.onRemove, fn)
	m.mu.Unlock()
}

// OnReset registers fn to run after a session is rewound and before it
// replays again
func (m *Manager) OnReset(fn func(id string)) {
	m.mu.Lock()
	m.onReset = append(m.onReset, fn)
	m.mu.Unlock()
}

// SpeedOptions returns the speeds a client may choose
func (m *Manager) SpeedOptions() []float64 {
	return append([]float64(nil), m.speeds...)
}

func (m *Manager) allowsSpeed(speed float64) bool {
	if len(m.speeds) == 0 {
		return true
	}
	for _, opt := range m.speeds {
		if opt == speed {
			return true
		}
	}
	return false
}

// Create registers a new session and starts its replay loop
func (m *Manager) Create(req CreateRequest) (*Session, error) {
	opts := m.defaults
	if req.Speed != nil {
		if err := checkSpeed(*req.Speed); err != nil {
			return nil, err
		}
		if !m.allowsSpeed(*req.Speed) {
			return nil, fmt.Errorf("%w: %v", ErrSpeedNotAllowed, *req.Speed)
		}
		opts.Speed = *req.Speed
	}
	if req.UpdateEvery != nil {
		if *req.UpdateEvery < 1 {
			return nil, fmt.Errorf("update_every must be at least 1, got %d", *req.UpdateEvery)
		}
		opts.UpdateEvery = *req.UpdateEvery
	}

	m.mu.Lock()
	if m.max > 0 && len(m.sessions) >= m.max {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, m.max)
	}
	id := uuid.NewString()
	sess := NewSession(id, m.data, opts, m.logger)
	m.sessions[id] = sess
	m.mu.Unlock()

	sess.Start(m.ctx, m.sink)

	m.logger.WithFields(map[string]interface{}{
		"session_id":   id,
		"speed":        opts.Speed,
		"update_every": opts.UpdateEvery,
	}).Info("Session created")

	return sess, nil
}

// Get returns a session and marks it as in use
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.Touch()
	return sess, nil
}

// List returns every session status ordered by creation time
func (m *Manager) List() []Status {
	m.mu.RLock()
	statuses := make([]Status, 0, len(m.sessions))
	for _, sess := range m.sessions {
		statuses = append(statuses, sess.Status())
	}
	m.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].CreatedAt.Equal(statuses[j].CreatedAt) {
			return statuses[i].ID < statuses[j].ID
		}
		return statuses[i].CreatedAt.Before(statuses[j].CreatedAt)
	})
	return statuses
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reset restarts a session from row 0
// The loop is stopped before rewinding, so a tick computed before the
// reset never reaches the sink afterwards and a loop that was just
// finishing cannot swallow the restart.
func (m *Manager) Reset(id string) (Status, error) {
	sess, err := m.Get(id)
	if err != nil {
		return Status{}, err
	}

	sess.Stop()
	sess.Reset()

	m.mu.RLock()
	hooks := append([]func(string){}, m.onReset...)
	_, live := m.sessions[id]
	m.mu.RUnlock()

	for _, fn := range hooks {
		fn(id)
	}
	// skip the restart when the session was destroyed meanwhile
	if live {
		sess.Start(m.ctx, m.sink)
	}

	return sess.Status(), nil
}

// SetSpeed changes a session's pacing to one of the allowed speeds
func (m *Manager) SetSpeed(id string, speed float64) (Status, error) {
	if err := checkSpeed(speed); err != nil {
		return Status{}, err
	}
	if !m.allowsSpeed(speed) {
		return Status{}, fmt.Errorf("%w: %v", ErrSpeedNotAllowed, speed)
	}

	sess, err := m.Get(id)
	if err != nil {
		return Status{}, err
	}
	if err := sess.SetSpeed(speed); err != nil {
		return Status{}, err
	}
	return sess.Status(), nil
}

// Destroy stops and removes a session
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	hooks := append([]func(string){}, m.onRemove...)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sess.Stop()
	for _, fn := range hooks {
		fn(id)
	}

	m.logger.WithField("session_id", id).Info("Session destroyed")
	return nil
}

// EvictIdle destroys sessions untouched for longer than ttl
func (m *Manager) EvictIdle(ttl time.Duration) []string {
	cutoff := time.Now().Add(-ttl)

	m.mu.RLock()
	var stale []string
	for id, sess := range m.sessions {
		if sess.IdleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	evicted := make([]string, 0, len(stale))
	for _, id := range stale {
		if err := m.Destroy(id); err == nil {
			evicted = append(evicted, id)
		}
	}

	if len(evicted) > 0 {
		m.logger.WithField("count", len(evicted)).Info("Evicted idle sessions")
	}
	return evicted
}

// Shutdown stops every session
func (m *Manager) Shutdown() {
	m.cancel()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}

	m.logger.WithField("sessions", len(sessions)).Info("Replay manager stopped")
}
