// Package jobs holds the scheduled maintenance jobs of the server
package jobs

import (
	"context"
	"time"

	"github.com/wonny/salespulse/internal/realtime"
	"github.com/wonny/salespulse/internal/replay"
	"github.com/wonny/salespulse/pkg/logger"
)

// SessionJanitorJob destroys sessions nobody has touched within the TTL
type SessionJanitorJob struct {
	manager  *replay.Manager
	ttl      time.Duration
	schedule string
	logger   *logger.Logger
}

// NewSessionJanitorJob creates the idle-session janitor
func NewSessionJanitorJob(manager *replay.Manager, ttl time.Duration, schedule string, log *logger.Logger) *SessionJanitorJob {
	return &SessionJanitorJob{
		manager:  manager,
		ttl:      ttl,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *SessionJanitorJob) Name() string {
	return "session_janitor"
}

// Schedule returns the cron schedule
func (j *SessionJanitorJob) Schedule() string {
	return j.schedule
}

// Run evicts idle sessions
func (j *SessionJanitorJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	evicted := j.manager.EvictIdle(j.ttl)
	if len(evicted) > 0 {
		j.logger.WithFields(map[string]interface{}{
			"evicted":   len(evicted),
			"remaining": j.manager.Len(),
		}).Info("Session janitor completed")
	}

	return nil
}

// StreamReportJob logs session and subscriber counts
type StreamReportJob struct {
	manager *replay.Manager
	hub     *realtime.Hub
	logger  *logger.Logger
}

// NewStreamReportJob creates the periodic stream report
func NewStreamReportJob(manager *replay.Manager, hub *realtime.Hub, log *logger.Logger) *StreamReportJob {
	return &StreamReportJob{manager: manager, hub: hub, logger: log}
}

// Name returns the job name
func (j *StreamReportJob) Name() string {
	return "stream_report"
}

// Schedule returns the cron schedule (every minute)
func (j *StreamReportJob) Schedule() string {
	return "0 * * * * *"
}

// Run logs the current counters
func (j *StreamReportJob) Run(ctx context.Context) error {
	stats := j.hub.Stats()

	running := 0
	for _, st := range j.manager.List() {
		if st.Running {
			running++
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"sessions":    j.manager.Len(),
		"running":     running,
		"subscribers": stats.Subscribers,
		"delivered":   stats.Delivered,
		"dropped":     stats.Dropped,
	}).Info("Stream report")

	return nil
}
