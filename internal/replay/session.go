package replay

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/salespulse/internal/dataset"
	"github.com/wonny/salespulse/internal/metrics"
	"github.com/wonny/salespulse/internal/sales"
	"github.com/wonny/salespulse/internal/window"
	"github.com/wonny/salespulse/pkg/logger"
)

// Status is a point-in-time view of a session's counters
type Status struct {
	ID           string         `json:"id"`
	Position     int            `json:"position"`
	Total        int            `json:"total"`
	Accepted     int            `json:"accepted"`
	Rejected     int            `json:"rejected"`
	RejectedBy   map[string]int `json:"rejected_by"`
	BufferLen    int            `json:"buffer_len"`
	Retention    string         `json:"retention"`
	UpdateEvery  int            `json:"update_every"`
	Speed        float64        `json:"speed"`
	Ticks        int            `json:"ticks"`
	Running      bool           `json:"running"`
	Exhausted    bool           `json:"exhausted"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}

// Tick is emitted every time a session recomputes its metrics
type Tick struct {
	SessionID string           `json:"session_id"`
	Row       int              `json:"row"`
	Snapshot  metrics.Snapshot `json:"snapshot"`
	Status    Status           `json:"status"`
}

// Session replays one dataset with its own buffer, position and counters
// ⭐ SSOT: all replay state lives here, nothing is package-global
type Session struct {
	id     string
	data   *dataset.Dataset
	logger *logger.Logger
	now    func() time.Time

	mu           sync.Mutex
	opts         Options
	buf          *window.Buffer
	pos          int
	accepted     int
	rejected     map[sales.Reason]int
	ticks        int
	latest       *metrics.Snapshot
	latestRow    int
	createdAt    time.Time
	lastActivity time.Time

	limiter *rate.Limiter

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a session positioned at row 0
func NewSession(id string, data *dataset.Dataset, opts Options, log *logger.Logger) *Session {
	opts = opts.normalize()
	now := time.Now()

	return &Session{
		id:           id,
		data:         data,
		logger:       log.WithSession(id),
		now:          time.Now,
		opts:         opts,
		buf:          window.NewWithPolicy(opts.Retention, opts.WindowSize),
		rejected:     make(map[sales.Reason]int),
		createdAt:    now,
		lastActivity: now,
		limiter:      rate.NewLimiter(limitFor(opts.Speed), 1),
	}
}

func limitFor(speed float64) rate.Limit {
	if speed == 0 {
		return rate.Inf
	}
	return rate.Every(delay(speed))
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Step replays the next row
// It returns a Tick when the row lands on the update cadence and the buffer
// holds data, nil otherwise, and ErrExhausted after the last row.
func (s *Session) Step() (*Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= s.data.Len() {
		return nil, ErrExhausted
	}

	row := s.pos
	res := sales.Validate(s.data.Row(row))
	if res.OK() {
		s.buf.Append(res.Record)
		s.accepted++
	} else {
		s.rejected[res.Reason]++
		s.logger.WithFields(map[string]interface{}{
			"row":    row,
			"reason": string(res.Reason),
		}).Debug("Row rejected")
	}

	due := row%s.opts.UpdateEvery == 0 && !s.buf.Empty()
	s.pos++

	if !due {
		return nil, nil
	}

	snap, err := metrics.Compute(s.buf.Snapshot())
	if errors.Is(err, metrics.ErrEmptyWindow) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.ComputedAt = s.now()

	s.latest = &snap
	s.latestRow = row
	s.ticks++

	return &Tick{
		SessionID: s.id,
		Row:       row,
		Snapshot:  snap,
		Status:    s.statusLocked(),
	}, nil
}

// Reset clears buffer, position and counters in one step
// A running loop keeps going from row 0; stop it first when ticks
// computed before the reset must not be published (see Manager.Reset).
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Reset()
	s.pos = 0
	s.accepted = 0
	clear(s.rejected)
	s.ticks = 0
	s.latest = nil
	s.lastActivity = s.now()

	s.logger.Info("Session reset")
}

// SetSpeed changes the pacing; 0 replays as fast as possible
func (s *Session) SetSpeed(speed float64) error {
	if err := checkSpeed(speed); err != nil {
		return err
	}

	s.mu.Lock()
	s.opts.Speed = speed
	s.lastActivity = s.now()
	s.mu.Unlock()

	s.limiter.SetLimit(limitFor(speed))

	s.logger.WithField("speed", speed).Info("Session speed changed")
	return nil
}

// Latest returns the last computed snapshot, false before the first tick
func (s *Session) Latest() (metrics.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return metrics.Snapshot{}, false
	}
	return *s.latest, true
}

// LatestTick rebuilds the last tick with the current status,
// false before the first tick
func (s *Session) LatestTick() (Tick, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return Tick{}, false
	}
	return Tick{
		SessionID: s.id,
		Row:       s.latestRow,
		Snapshot:  *s.latest,
		Status:    s.statusLocked(),
	}, true
}

// Status returns the current counters
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	byReason := make(map[string]int, len(s.rejected))
	total := 0
	for reason, n := range s.rejected {
		byReason[string(reason)] = n
		total += n
	}

	return Status{
		ID:           s.id,
		Position:     s.pos,
		Total:        s.data.Len(),
		Accepted:     s.accepted,
		Rejected:     total,
		RejectedBy:   byReason,
		BufferLen:    s.buf.Len(),
		Retention:    string(s.buf.Retention()),
		UpdateEvery:  s.opts.UpdateEvery,
		Speed:        s.opts.Speed,
		Ticks:        s.ticks,
		Running:      s.cancel != nil,
		Exhausted:    s.pos >= s.data.Len(),
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

// Touch marks the session as in use so the janitor keeps it
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = s.now()
	s.mu.Unlock()
}

// IdleSince returns the time of the last client interaction
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Run steps the dataset until it is exhausted or ctx is cancelled,
// handing every tick to sink
func (s *Session) Run(ctx context.Context, sink Sink) error {
	s.logger.WithFields(map[string]interface{}{
		"rows":         s.data.Len(),
		"update_every": s.opts.UpdateEvery,
	}).Info("Replay started")

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		tick, err := s.Step()
		if errors.Is(err, ErrExhausted) {
			s.logger.WithField("ticks", s.Status().Ticks).Info("Replay finished")
			return nil
		}
		if err != nil {
			return err
		}

		if tick != nil && sink != nil {
			if err := sink.Publish(ctx, *tick); err != nil {
				s.logger.WithError(err).Warn("Failed to publish tick")
			}
		}
	}
}

// Start runs the replay loop in the background unless it is already running
func (s *Session) Start(parent context.Context, sink Sink) bool {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		err := s.Run(ctx, sink)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Error("Replay stopped")
		}

		s.mu.Lock()
		if s.done == done {
			s.cancel = nil
			s.done = nil
		}
		s.mu.Unlock()
	}()

	return true
}

// Stop cancels the background loop and waits for it to return
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the background loop is active
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
