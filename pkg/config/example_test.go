package config_test

import (
	"fmt"

	"github.com/wonny/salespulse/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Server running on port: %s\n", cfg.Port)
	fmt.Printf("Dataset source: %s\n", cfg.Dataset.Source)
	fmt.Printf("Window: %s/%d rows, metrics every %d rows\n",
		cfg.Replay.Retention, cfg.Replay.WindowSize, cfg.Replay.UpdateEvery)
	fmt.Printf("Row delay: %v\n", config.SpeedDelay(cfg.Replay.Speed))
}
