package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/salespulse/pkg/config"
	"github.com/wonny/salespulse/pkg/logger"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "salespulse",
	Short: "Replay retail transactions into a live sales dashboard",
	Long: `salespulse replays a static retail dataset row by row, validates
every row, keeps a rolling window of accepted sales and recomputes the
dashboard metrics as the window moves.

Usage:
  go run ./cmd/salespulse [command]

Examples:
  go run ./cmd/salespulse serve
  go run ./cmd/salespulse replay --speed 0 --limit 500
  go run ./cmd/salespulse inspect`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file to load before the environment (default: .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// bootstrap loads config and builds the logger, applying the global flags
func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	return cfg, logger.New(cfg), nil
}
