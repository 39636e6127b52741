package main

import (
	"os"

	"github.com/wonny/salespulse/cmd/salespulse/commands"
)

// main is the entry point: go run ./cmd/salespulse [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
