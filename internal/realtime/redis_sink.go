package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/salespulse/internal/dashboard"
	"github.com/wonny/salespulse/internal/replay"
	"github.com/wonny/salespulse/pkg/logger"
	"github.com/wonny/salespulse/pkg/redis"
)

// RedisSink mirrors every tick into Redis: the latest dashboard view and
// status are cached per session and the tick is published on the session
// channel, in the same shape stream clients receive
type RedisSink struct {
	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisSink creates a sink; a disabled client turns it into a no-op
func NewRedisSink(cache *redis.Cache, ttl time.Duration, log *logger.Logger) *RedisSink {
	if ttl <= 0 {
		ttl = redis.TTLShort
	}
	return &RedisSink{
		cache:  cache,
		ttl:    ttl,
		logger: log.WithComponent("redis_sink"),
	}
}

// Publish implements replay.Sink
func (s *RedisSink) Publish(ctx context.Context, tick replay.Tick) error {
	view := dashboard.PresentTick(tick)
	var errs []error

	if err := s.cache.Set(ctx, redis.SessionMetricsKey(tick.SessionID), view.Metrics, s.ttl); err != nil {
		errs = append(errs, fmt.Errorf("cache snapshot: %w", err))
	}
	if err := s.cache.Set(ctx, redis.SessionStatusKey(tick.SessionID), tick.Status, s.ttl); err != nil {
		errs = append(errs, fmt.Errorf("cache status: %w", err))
	}
	if err := s.cache.Publish(ctx, redis.TicksChannel(tick.SessionID), view); err != nil {
		errs = append(errs, fmt.Errorf("publish tick: %w", err))
	}

	return errors.Join(errs...)
}

// Forget drops a session's cached keys, on reset and on removal
func (s *RedisSink) Forget(ctx context.Context, sessionID string) {
	err := s.cache.Delete(ctx,
		redis.SessionMetricsKey(sessionID),
		redis.SessionStatusKey(sessionID),
	)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to drop cached session")
	}
}
