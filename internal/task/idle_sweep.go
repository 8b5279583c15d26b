package task

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	logEventIdleSessionsEvicted = "idle_sessions_evicted"
	logFieldEvictedCount        = "evicted"
	logFieldIdleTTL             = "idle_ttl"
)

// IdleSessionEvictor closes and forgets sessions that have been inactive since before cutoff.
type IdleSessionEvictor interface {
	EvictIdle(cutoff time.Time) int
}

// NewIdleSessionSweep returns a runner that evicts sessions idle for longer than idleTTL.
func NewIdleSessionSweep(evictor IdleSessionEvictor, idleTTL time.Duration, clock func() time.Time, logger *zap.Logger) RunnerFunc {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) {
		if ctx.Err() != nil || evictor == nil {
			return
		}
		evicted := evictor.EvictIdle(clock().Add(-idleTTL))
		if evicted > 0 {
			logger.Info(logEventIdleSessionsEvicted, zap.Int(logFieldEvictedCount, evicted), zap.Duration(logFieldIdleTTL, idleTTL))
		}
	}
}
