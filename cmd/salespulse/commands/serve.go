package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/salespulse/internal/api"
	"github.com/wonny/salespulse/internal/api/handlers"
	"github.com/wonny/salespulse/internal/dataset"
	"github.com/wonny/salespulse/internal/realtime"
	"github.com/wonny/salespulse/internal/replay"
	"github.com/wonny/salespulse/internal/scheduler"
	"github.com/wonny/salespulse/internal/scheduler/jobs"
	"github.com/wonny/salespulse/pkg/redis"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session API and live streams",
	Long: `Loads the dataset once, then serves replay sessions over HTTP.

Endpoints:
  GET    /health
  POST   /api/sessions                - start a session
  GET    /api/sessions                - list sessions
  GET    /api/sessions/{id}           - session counters
  GET    /api/sessions/{id}/metrics   - latest dashboard snapshot
  POST   /api/sessions/{id}/reset     - restart from the first row
  PUT    /api/sessions/{id}/speed     - change pacing
  DELETE /api/sessions/{id}           - stop a session
  GET    /api/sessions/{id}/stream    - WebSocket, one message per tick

Example:
  go run ./cmd/salespulse serve
  go run ./cmd/salespulse serve --port 9000`,
	RunE: runServe,
}

var (
	servePort string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags
	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP port (default: PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	if servePort != "" {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load dataset
	data, err := dataset.Open(ctx, cfg, log)
	if err != nil {
		return err
	}

	// 2. Redis snapshot cache (no-op when disabled)
	redisClient, err := redis.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	redisSink := realtime.NewRedisSink(redis.NewCache(redisClient, "salespulse"), cfg.Redis.TTL, log)

	// 3. Sessions and live fan-out
	hub := realtime.NewHub(realtime.DefaultBuffer, log)
	manager, err := replay.NewManager(data, cfg, replay.Fanout{hub, redisSink}, log)
	if err != nil {
		return err
	}
	forget := func(id string) {
		forgetCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		redisSink.Forget(forgetCtx, id)
	}
	manager.OnRemove(hub.CloseSession)
	manager.OnRemove(forget)
	manager.OnReset(hub.ResetSession)
	manager.OnReset(forget)

	// 4. Background jobs
	sched := scheduler.New(log, scheduler.WithRetry(1, 5*time.Second))
	if err := sched.AddJob(jobs.NewSessionJanitorJob(manager, cfg.Session.IdleTTL, cfg.Session.JanitorSchedule, log)); err != nil {
		return err
	}
	if err := sched.AddJob(jobs.NewStreamReportJob(manager, hub, log)); err != nil {
		return err
	}
	sched.Start()

	// 5. HTTP server
	router := api.NewRouter(handlers.NewSessionHandler(manager, hub, log), log)
	server := api.New(cfg, log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.WithFields(map[string]interface{}{
		"rows":     data.Len(),
		"dataset":  data.Name(),
		"redis":    redisClient.Enabled(),
		"sessions": cfg.Session.MaxSessions,
	}).Info("Server ready")
	fmt.Fprintf(cmd.OutOrStdout(), "\n✅ Server running on http://localhost:%s\nPress Ctrl+C to stop\n", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// streams are hijacked connections the server no longer tracks
	hub.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	sched.Stop()
	manager.Shutdown()

	log.Info("Server stopped")
	return nil
}
