package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/salespulse/internal/dataset"
	"github.com/wonny/salespulse/internal/replay"
	"github.com/wonny/salespulse/internal/window"
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay the dataset in the terminal",
	Long: `Runs a single session in the foreground and prints one line per
metrics tick, then the final dashboard.

Example:
  go run ./cmd/salespulse replay
  go run ./cmd/salespulse replay --speed 0 --limit 1000 --update-every 50
  go run ./cmd/salespulse replay --window 0   # unbounded window`,
	RunE: runReplay,
}

var (
	replaySpeed       float64
	replayLimit       int
	replayUpdateEvery int
	replayWindow      int
)

func init() {
	rootCmd.AddCommand(replayCmd)

	// Flags
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", -1, "seconds per row, 0 = unpaced (default: REPLAY_SPEED)")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 0, "replay at most this many rows (0 = all)")
	replayCmd.Flags().IntVar(&replayUpdateEvery, "update-every", 0, "recompute metrics every N rows (default: REPLAY_UPDATE_EVERY)")
	replayCmd.Flags().IntVar(&replayWindow, "window", -1, "sliding window size, 0 = unbounded (default: REPLAY_WINDOW_SIZE)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := dataset.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	data = limitRows(data, replayLimit)

	opts, err := replay.OptionsFromConfig(cfg.Replay)
	if err != nil {
		return err
	}
	opts = applyReplayFlags(opts)

	out := newConsole(cmd.OutOrStdout())
	out.header("Replay: " + data.Name())

	sess := replay.NewSession("cli", data, opts, log)
	sink := replay.SinkFunc(func(_ context.Context, t replay.Tick) error {
		out.tick(t)
		return nil
	})

	if err := sess.Run(ctx, sink); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	st := sess.Status()
	out.header("Final window")
	if snap, ok := sess.Latest(); ok {
		out.snapshot(snap)
	}
	out.printf("%s\n  Rows replayed : %d of %d\n  Accepted      : %d\n  Rejected      : %d\n", ruleLight, st.Position, st.Total, st.Accepted, st.Rejected)
	out.rejections(st.RejectedBy)
	out.line()

	return nil
}

// applyReplayFlags overrides config defaults with the flags that were set
func applyReplayFlags(opts replay.Options) replay.Options {
	if replaySpeed >= 0 {
		opts.Speed = replaySpeed
	}
	if replayUpdateEvery > 0 {
		opts.UpdateEvery = replayUpdateEvery
	}
	switch {
	case replayWindow == 0:
		opts.Retention = window.RetentionUnbounded
	case replayWindow > 0:
		opts.Retention = window.RetentionSliding
		opts.WindowSize = replayWindow
	}
	return opts
}

// limitRows keeps the first n rows; n <= 0 keeps everything
func limitRows(data *dataset.Dataset, n int) *dataset.Dataset {
	if n <= 0 || n >= data.Len() {
		return data
	}
	return data.Head(n)
}
