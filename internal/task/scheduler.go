package task

import (
	"context"
	"sync"
	"time"
)

const defaultSchedulerInterval = time.Minute

// RunnerFunc is one unit of periodic work.
type RunnerFunc func(context.Context)

// Scheduler runs a RunnerFunc on a fixed interval and on demand. Runs never overlap.
type Scheduler struct {
	interval time.Duration
	runner   RunnerFunc
	trigger  chan struct{}

	controlMutex sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewScheduler builds a stopped scheduler. Non-positive intervals fall back to one minute.
func NewScheduler(interval time.Duration, runner RunnerFunc) *Scheduler {
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	return &Scheduler{
		interval: interval,
		runner:   runner,
		trigger:  make(chan struct{}, 1),
	}
}

// Start launches the loop. Repeated calls are no-ops until Stop.
func (scheduler *Scheduler) Start(ctx context.Context) {
	if scheduler == nil || scheduler.runner == nil {
		return
	}
	scheduler.controlMutex.Lock()
	defer scheduler.controlMutex.Unlock()
	if scheduler.cancel != nil {
		return
	}
	loopContext, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	scheduler.done = make(chan struct{})
	go scheduler.loop(loopContext, scheduler.done)
}

// Trigger requests an immediate run; requests coalesce while one is pending.
func (scheduler *Scheduler) Trigger() {
	if scheduler == nil {
		return
	}
	select {
	case scheduler.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and waits for an in-progress run to return.
func (scheduler *Scheduler) Stop() {
	if scheduler == nil {
		return
	}
	scheduler.controlMutex.Lock()
	cancel, done := scheduler.cancel, scheduler.done
	scheduler.cancel, scheduler.done = nil, nil
	scheduler.controlMutex.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (scheduler *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(scheduler.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-scheduler.trigger:
			scheduler.runner(ctx)
			ticker.Reset(scheduler.interval)
		case <-ticker.C:
			scheduler.runner(ctx)
		}
	}
}
