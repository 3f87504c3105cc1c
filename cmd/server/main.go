// Command server runs the rhythm-game multiplayer session server.
//
// The flag set, graceful-shutdown signal handling, and metrics goroutine are
// adapted from the reference corpus's main.go, which wires its store, room,
// and HTTPS server together the same way: parse flags, build dependencies,
// start background tickers, then block in the foreground server's Run.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/rhythmarena/mpserver/internal/config"
	"github.com/rhythmarena/mpserver/internal/mpserver"
)

// Version is the server's release version, reported by the "version"
// subcommand and logged at startup.
const Version = "0.1.0"

func main() {
	if len(os.Args) > 1 {
		if RunCLI(os.Args[1:]) {
			return
		}
	}

	configPath := flag.String("config", "mpserver.yaml", "path to the YAML configuration file")
	bindIP := flag.String("bind", "", "override the configured bind address")
	port := flag.Int("port", 0, "override the configured listen port")
	logLevel := flag.String("log-level", "", "override the configured log level (debug|info|warn|error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if *bindIP != "" {
		cfg.BindIP = *bindIP
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	slog.SetLogLoggerLevel(parseLevel(cfg.LogLevel))

	srv := mpserver.New(*cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	go mpserver.RunMetrics(ctx, srv, 30*time.Second)

	slog.Info("mpserver starting", "version", Version, "bind", cfg.BindIP, "port", cfg.Port)
	if err := srv.Run(ctx); err != nil {
		slog.Error("mpserver exited with error", "err", err)
		os.Exit(1)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
