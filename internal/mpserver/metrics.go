package mpserver

import (
	"context"
	"log/slog"
	"time"
)

// RunMetrics logs user/room counts every interval until ctx is cancelled.
// Adapted from the reference corpus's RunMetrics (metrics.go), which logs
// voice-relay datagram throughput on the same kind of ticker loop; here the
// counters are the process-wide registries instead of per-room datagram
// stats, and the sink is structured slog rather than the standard logger.
func RunMetrics(ctx context.Context, s *Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			users := s.Users().Count()
			rooms := s.Rooms().Count()
			if users > 0 || rooms > 0 {
				slog.Info("mpserver metrics", "users", users, "rooms", rooms)
			}
		}
	}
}
