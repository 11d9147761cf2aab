// Package orchestrator supervises the fleet: it owns every agent's runtime
// state, drives per-agent tick loops with single-flight guarantees, gates
// execution through the autonomy rules, and routes approved orders to the
// venue.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/helix-markets/agentfleet/src/custody"
	"github.com/helix-markets/agentfleet/src/decision"
	"github.com/helix-markets/agentfleet/src/exchange"
	"github.com/helix-markets/agentfleet/src/execution"
	"github.com/helix-markets/agentfleet/src/types"
)

// Options bound scheduler behavior platform-wide.
type Options struct {
	DefaultInterval time.Duration
	MinInterval     time.Duration
	MaxInterval     time.Duration
	TickTimeout     time.Duration
	// StaleIntervals is how many missed intervals mark an agent degraded.
	StaleIntervals int
	// UnhealthyErrors is the consecutive-error threshold for unhealthy.
	UnhealthyErrors int
	// MaxRunners caps concurrent schedulers; exceeding it is a reported
	// activation failure that leaves the agent's status unchanged.
	MaxRunners int
}

func (o Options) withDefaults() Options {
	if o.DefaultInterval <= 0 {
		o.DefaultInterval = time.Minute
	}
	if o.MinInterval <= 0 {
		o.MinInterval = 5 * time.Second
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 24 * time.Hour
	}
	if o.TickTimeout <= 0 {
		o.TickTimeout = 2 * time.Minute
	}
	if o.StaleIntervals <= 0 {
		o.StaleIntervals = 3
	}
	if o.UnhealthyErrors <= 0 {
		o.UnhealthyErrors = 4
	}
	if o.MaxRunners <= 0 {
		o.MaxRunners = 256
	}
	return o
}

// Supervisor is the single owner of the running-scheduler registry. No other
// component starts or stops runners.
type Supervisor struct {
	store     Store
	counter   TradeCounter
	venue     exchange.Adapter
	resolver  custody.Resolver
	router    *execution.Router
	engine    decision.Engine
	approvals *Approvals
	opts      Options
	log       *log.Logger

	mu      sync.Mutex
	runners map[string]*runner
	guards  map[string]*sync.Mutex
}

// New wires a supervisor. The approvals book is created on the same store.
func New(store Store, counter TradeCounter, venue exchange.Adapter, resolver custody.Resolver,
	router *execution.Router, engine decision.Engine, opts Options, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{
		store:     store,
		counter:   counter,
		venue:     venue,
		resolver:  resolver,
		router:    router,
		engine:    engine,
		approvals: NewApprovals(store, logger),
		opts:      opts.withDefaults(),
		runners:   make(map[string]*runner),
		guards:    make(map[string]*sync.Mutex),
		log:       logger,
	}
}

// Approvals exposes the approval book to API surfaces that only resolve
// approvals through Approve/Reject below.
func (s *Supervisor) Approvals() *Approvals { return s.approvals }

// Initialize starts a scheduler for every agent whose durable status is
// active. It is idempotent: agents that already have a runner are left alone.
func (s *Supervisor) Initialize(ctx context.Context) error {
	agents, err := s.store.ActiveAgents(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: load active agents: %w", err)
	}

	var failed []string
	for _, agent := range agents {
		if err := s.startRunner(agent.ID, s.opts.DefaultInterval); err != nil {
			s.log.Printf("initialize: agent %s: %v", agent.ID, err)
			failed = append(failed, agent.ID)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("orchestrator: initialize failed for agents %v", failed)
	}
	s.log.Printf("initialize: %d active agents supervised", len(agents))
	return nil
}

// Activate marks the agent active and starts its scheduler. Activating an
// agent whose scheduler is already running is a no-op returning current
// state; there is never more than one scheduler per agent. interval <= 0
// selects the platform default; out-of-range values are clamped.
func (s *Supervisor) Activate(ctx context.Context, agentID string, interval time.Duration) (*LifecycleState, error) {
	agent, err := s.store.Agent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	interval = s.clampInterval(interval)

	s.mu.Lock()
	if r, ok := s.runners[agentID]; ok {
		s.mu.Unlock()
		st := r.snapshot()
		st.HealthStatus = s.healthOf(st)
		return &st, nil
	}
	if len(s.runners) >= s.opts.MaxRunners {
		s.mu.Unlock()
		// Reported, not swallowed: status stays unchanged so a later
		// activate or autoHeal can retry.
		return nil, fmt.Errorf("orchestrator: scheduler capacity exhausted (%d runners)", s.opts.MaxRunners)
	}
	s.mu.Unlock()

	if agent.Status != types.AgentStatusActive {
		if err := s.store.SetAgentStatus(ctx, agentID, types.AgentStatusActive); err != nil {
			return nil, fmt.Errorf("orchestrator: set status: %w", err)
		}
	}
	if err := s.startRunner(agentID, interval); err != nil {
		return nil, err
	}

	s.mu.Lock()
	r := s.runners[agentID]
	s.mu.Unlock()
	st := r.snapshot()
	st.HealthStatus = s.healthOf(st)
	return &st, nil
}

// Deactivate marks the agent paused and cancels its scheduler. Future
// firings stop immediately; a tick already mid-flight completes and writes
// its trade-log entry. Safe on an already-stopped agent.
func (s *Supervisor) Deactivate(ctx context.Context, agentID string) error {
	agent, err := s.store.Agent(ctx, agentID)
	if err != nil {
		return err
	}

	if agent.Status == types.AgentStatusActive {
		if err := s.store.SetAgentStatus(ctx, agentID, types.AgentStatusPaused); err != nil {
			return fmt.Errorf("orchestrator: set status: %w", err)
		}
	}

	s.mu.Lock()
	r, ok := s.runners[agentID]
	if ok {
		delete(s.runners, agentID)
	}
	s.mu.Unlock()
	if ok {
		r.stop()
		s.log.Printf("agent %s: deactivated", agentID)
	}
	return nil
}

// StopAll cancels every running scheduler without touching any agent's
// durable status. A later Initialize restores the fleet.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	stopped := make([]*runner, 0, len(s.runners))
	for id, r := range s.runners {
		stopped = append(stopped, r)
		delete(s.runners, id)
	}
	s.mu.Unlock()

	for _, r := range stopped {
		r.stop()
	}
	s.log.Printf("stop-all: %d schedulers cancelled", len(stopped))
}

// TickReport describes the outcome of a manual tick trigger.
type TickReport struct {
	Ran     bool   `json:"ran"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// TriggerTick runs one tick immediately, regardless of the scheduler
// interval, under the same single-flight guard. Used for manual-mode agents
// and on-demand runs.
func (s *Supervisor) TriggerTick(ctx context.Context, agentID string) (*TickReport, error) {
	if _, err := s.store.Agent(ctx, agentID); err != nil {
		return nil, err
	}

	guard := s.guardFor(agentID)
	if !guard.TryLock() {
		return &TickReport{Skipped: true}, nil
	}
	defer guard.Unlock()

	err := s.runTick(ctx, agentID)
	s.mu.Lock()
	r := s.runners[agentID]
	s.mu.Unlock()
	if r != nil {
		r.record(err)
	}

	rep := &TickReport{Ran: true}
	if err != nil {
		rep.Error = err.Error()
	}
	return rep, nil
}

// startRunner registers and starts a scheduler. The caller must have ensured
// no runner exists; the double-check here keeps the invariant under races.
func (s *Supervisor) startRunner(agentID string, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runners[agentID]; ok {
		return nil
	}
	if len(s.runners) >= s.opts.MaxRunners {
		return fmt.Errorf("orchestrator: scheduler capacity exhausted (%d runners)", s.opts.MaxRunners)
	}

	guard := s.guardForLocked(agentID)
	r := newRunner(agentID, interval, s.opts.TickTimeout, guard, s.runTick, s.log)
	s.runners[agentID] = r
	r.start()
	s.log.Printf("agent %s: scheduler started (interval %s)", agentID, interval)
	return nil
}

func (s *Supervisor) clampInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		return s.opts.DefaultInterval
	}
	if interval < s.opts.MinInterval {
		return s.opts.MinInterval
	}
	if interval > s.opts.MaxInterval {
		return s.opts.MaxInterval
	}
	return interval
}

// guardFor returns the per-agent single-flight lock, shared between the
// scheduler and manual triggers.
func (s *Supervisor) guardFor(agentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guardForLocked(agentID)
}

func (s *Supervisor) guardForLocked(agentID string) *sync.Mutex {
	g, ok := s.guards[agentID]
	if !ok {
		g = &sync.Mutex{}
		s.guards[agentID] = g
	}
	return g
}
