package orchestrator

import (
	"context"
	"time"

	"github.com/helix-markets/agentfleet/src/types"
)

// Health returns the runtime state for one agent. Agents without a running
// scheduler report status stopped with zeroed counters.
func (s *Supervisor) Health(ctx context.Context, agentID string) (*LifecycleState, error) {
	if _, err := s.store.Agent(ctx, agentID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	r := s.runners[agentID]
	s.mu.Unlock()

	if r == nil {
		return &LifecycleState{AgentID: agentID, HealthStatus: HealthStopped}, nil
	}
	st := r.snapshot()
	st.HealthStatus = s.healthOf(st)
	return &st, nil
}

// HealthAll returns runtime state for every known agent.
func (s *Supervisor) HealthAll(ctx context.Context) ([]LifecycleState, error) {
	agents, err := s.store.AllAgents(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	runners := make(map[string]*runner, len(s.runners))
	for id, r := range s.runners {
		runners[id] = r
	}
	s.mu.Unlock()

	out := make([]LifecycleState, 0, len(agents))
	for _, agent := range agents {
		if r, ok := runners[agent.ID]; ok {
			st := r.snapshot()
			st.HealthStatus = s.healthOf(st)
			out = append(out, st)
			continue
		}
		out = append(out, LifecycleState{AgentID: agent.ID, HealthStatus: HealthStopped})
	}
	return out, nil
}

// healthOf derives health from tick counters and a freshness check. Repeated
// consecutive errors dominate staleness.
func (s *Supervisor) healthOf(st LifecycleState) string {
	if !st.RunnerActive {
		return HealthStopped
	}
	if st.ErrorCount >= s.opts.UnhealthyErrors {
		return HealthUnhealthy
	}
	last := st.LastTickAt
	if last.IsZero() {
		last = st.StartedAt
	}
	if time.Since(last) > time.Duration(s.opts.StaleIntervals)*st.Interval {
		return HealthDegraded
	}
	return HealthHealthy
}

// HealResult partitions the agents autoHeal touched.
type HealResult struct {
	Healed  []string `json:"healed"`
	Failing []string `json:"failing"`
}

// AutoHeal restarts the scheduler of every degraded or unhealthy agent whose
// durable status is still active. Paused and stopped agents are intentionally
// not running and are never restarted here.
func (s *Supervisor) AutoHeal(ctx context.Context) (*HealResult, error) {
	agents, err := s.store.AllAgents(ctx)
	if err != nil {
		return nil, err
	}

	res := &HealResult{}
	for _, agent := range agents {
		if agent.Status != types.AgentStatusActive {
			continue
		}

		s.mu.Lock()
		r := s.runners[agent.ID]
		s.mu.Unlock()

		interval := s.opts.DefaultInterval
		needsRestart := r == nil
		if r != nil {
			st := r.snapshot()
			interval = st.Interval
			health := s.healthOf(st)
			needsRestart = health == HealthDegraded || health == HealthUnhealthy
		}
		if !needsRestart {
			continue
		}

		if r != nil {
			s.mu.Lock()
			delete(s.runners, agent.ID)
			s.mu.Unlock()
			r.stop()
		}
		if err := s.startRunner(agent.ID, interval); err != nil {
			s.log.Printf("auto-heal: agent %s restart failed: %v", agent.ID, err)
			res.Failing = append(res.Failing, agent.ID)
			continue
		}
		s.log.Printf("auto-heal: agent %s scheduler restarted", agent.ID)
		res.Healed = append(res.Healed, agent.ID)
	}
	return res, nil
}
