package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"
)

// tickFunc performs one evaluate-decide-gate-execute cycle for the agent.
type tickFunc func(ctx context.Context, agentID string) error

// runner drives one agent's timer loop. Firings for the same agent are
// strictly serialized through the shared per-agent guard: a firing that finds
// a tick still in flight is skipped, never queued.
type runner struct {
	agentID     string
	interval    time.Duration
	tickTimeout time.Duration
	guard       *sync.Mutex
	tick        tickFunc
	log         *log.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state LifecycleState
}

func newRunner(agentID string, interval, tickTimeout time.Duration, guard *sync.Mutex, tick tickFunc, logger *log.Logger) *runner {
	return &runner{
		agentID:     agentID,
		interval:    interval,
		tickTimeout: tickTimeout,
		guard:       guard,
		tick:        tick,
		log:         logger,
		done:        make(chan struct{}),
		state: LifecycleState{
			AgentID:      agentID,
			RunnerActive: true,
			StartedAt:    time.Now().UTC(),
			Interval:     interval,
		},
	}
}

// start launches the loop goroutine.
func (r *runner) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.loop(ctx)
}

func (r *runner) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.state.RunnerActive = false
			r.mu.Unlock()
			return
		case <-ticker.C:
			r.fire()
		}
	}
}

// fire runs one tick under the single-flight guard. The tick context is
// detached from the loop context: stopping the runner cancels future firings
// but never aborts a tick already mid-flight.
func (r *runner) fire() {
	if !r.guard.TryLock() {
		r.recordSkip()
		return
	}
	defer r.guard.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.tickTimeout)
	defer cancel()
	r.record(r.tick(ctx, r.agentID))
}

// record updates tick counters after a completed tick.
func (r *runner) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.TickCount++
	r.state.LastTickAt = time.Now().UTC()
	if err != nil {
		r.state.ErrorCount++
		r.state.LastError = err.Error()
		r.log.Printf("agent %s: tick error (%d consecutive): %v", r.agentID, r.state.ErrorCount, err)
		return
	}
	r.state.ErrorCount = 0
	r.state.LastError = ""
}

// recordSkip notes an overlapped firing. Skips are not errors.
func (r *runner) recordSkip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.SkippedTicks++
	r.log.Printf("agent %s: tick skipped, previous tick still in flight", r.agentID)
}

// stop cancels future firings. It does not wait for an in-flight tick; the
// tick finishes on its own and still writes its trade-log entry.
func (r *runner) stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// snapshot returns a copy of the runtime state. Reads tolerate concurrent
// writes from the loop goroutine.
func (r *runner) snapshot() LifecycleState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
