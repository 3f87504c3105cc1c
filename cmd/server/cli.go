package main

import (
	"fmt"
	"os"

	"github.com/rhythmarena/mpserver/internal/config"
)

// RunCLI handles subcommand execution before flag parsing begins. Returns
// true if a subcommand was handled, in which case main should exit
// immediately instead of starting the server. Adapted from the reference
// corpus's RunCLI dispatch (cli.go), minus the subcommands that depend on
// its SQLite store, which this server has no equivalent of.
func RunCLI(args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("mpserver %s\n", Version)
		return true
	case "status":
		return cliStatus(args[1:])
	default:
		return false
	}
}

func cliStatus(args []string) bool {
	configPath := "mpserver.yaml"
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Bind: %s:%d\n", cfg.BindIP, cfg.Port)
	fmt.Printf("Room max players: %d\n", cfg.RoomMaxPlayers)
	fmt.Printf("Cycle voting: %t\n", cfg.CycleVoting)
	fmt.Printf("Monitors: %v\n", cfg.Monitors)
	fmt.Printf("Identity base URL: %s\n", cfg.IdentityBaseURL)
	fmt.Printf("Version: %s\n", Version)
	return true
}
