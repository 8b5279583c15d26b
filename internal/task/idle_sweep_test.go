package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingEvictor struct {
	cutoffs []time.Time
	evicted int
}

func (evictor *recordingEvictor) EvictIdle(cutoff time.Time) int {
	evictor.cutoffs = append(evictor.cutoffs, cutoff)
	return evictor.evicted
}

func TestIdleSessionSweepUsesTTLCutoff(testingT *testing.T) {
	now := time.Date(2025, time.May, 1, 9, 30, 0, 0, time.UTC)
	evictor := &recordingEvictor{evicted: 2}
	core, logs := observer.New(zap.InfoLevel)

	sweep := NewIdleSessionSweep(evictor, 30*time.Minute, func() time.Time { return now }, zap.New(core))
	sweep(context.Background())

	require.Equal(testingT, []time.Time{now.Add(-30 * time.Minute)}, evictor.cutoffs)
	entries := logs.FilterMessage(logEventIdleSessionsEvicted).All()
	require.Len(testingT, entries, 1)
	require.EqualValues(testingT, 2, entries[0].ContextMap()[logFieldEvictedCount])
}

func TestIdleSessionSweepSkipsCancelledContext(testingT *testing.T) {
	evictor := &recordingEvictor{}
	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	NewIdleSessionSweep(evictor, time.Minute, nil, nil)(cancelledContext)
	require.Empty(testingT, evictor.cutoffs)
}
