package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/metrics"
)

// purgeLoop periodically deletes expired events and old dispatch history.
func (s *Server) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Purge(ctx, time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// Purge runs one purge pass as of now.
func (s *Server) Purge(ctx context.Context, now time.Time) {
	events, err := s.deps.Storage.Events().DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("purge expired events", zap.Error(err))
	} else if events > 0 {
		metrics.EventsPurged.Add(float64(events))
		s.logger.Info("purged expired events", zap.Int64("count", events))
	}

	history, err := s.deps.Storage.AlertHistory().DeleteBefore(ctx, now.Add(-s.config.HistoryRetention))
	if err != nil {
		s.logger.Error("purge alert history", zap.Error(err))
	} else if history > 0 && s.config.Verbose {
		s.logger.Info("purged alert history", zap.Int64("count", history))
	}
}
