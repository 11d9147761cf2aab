package orchestrator

import "time"

// Health status values. Computed on read from tick counters, never stored.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
	HealthStopped   = "stopped"
)

// LifecycleState is the runtime view of one agent. It is rebuildable from
// Agent.Status plus observed tick history and is discarded on deactivation.
type LifecycleState struct {
	AgentID      string        `json:"agent_id"`
	RunnerActive bool          `json:"runner_active"`
	HealthStatus string        `json:"health_status"`
	TickCount    uint64        `json:"tick_count"`
	SkippedTicks uint64        `json:"skipped_ticks"`
	LastTickAt   time.Time     `json:"last_tick_at"`
	StartedAt    time.Time     `json:"started_at"`
	ErrorCount   int           `json:"error_count"`
	LastError    string        `json:"last_error,omitempty"`
	Interval     time.Duration `json:"interval_ms"`
}
