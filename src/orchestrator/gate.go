package orchestrator

import (
	"fmt"

	"github.com/helix-markets/agentfleet/src/types"
)

// GateOutcome is the autonomy gate's verdict for one decision.
type GateOutcome string

const (
	OutcomeExecute         GateOutcome = "execute"
	OutcomeHold            GateOutcome = "hold"
	OutcomePendingApproval GateOutcome = "pending-approval"
)

// GateResult pairs the outcome with a human-readable reason for the audit
// log.
type GateResult struct {
	Outcome GateOutcome
	Reason  string
}

// EvaluateGate applies the agent's autonomy configuration to a produced
// decision. It is pure: approval creation and counter updates belong to the
// caller. hasPending reports whether a pending approval already exists for
// the agent; a second decision never stacks or replaces one.
func EvaluateGate(cfg types.AutonomyConfig, d types.TradeDecision, executedToday int, hasPending bool) GateResult {
	if d.Action == types.ActionHold {
		return GateResult{Outcome: OutcomeHold, Reason: "decision is hold"}
	}

	floor := cfg.ResolveMinConfidence()
	if d.Confidence < floor {
		return GateResult{
			Outcome: OutcomeHold,
			Reason:  fmt.Sprintf("confidence %.2f below floor %.2f", d.Confidence, floor),
		}
	}

	// MaxTradesPerDay <= 0 means the cap is unset.
	if cfg.MaxTradesPerDay > 0 && executedToday >= cfg.MaxTradesPerDay {
		return GateResult{
			Outcome: OutcomeHold,
			Reason:  fmt.Sprintf("daily cap reached (%d/%d)", executedToday, cfg.MaxTradesPerDay),
		}
	}

	switch cfg.Mode {
	case types.ModeFull:
		return GateResult{Outcome: OutcomeExecute, Reason: "full autonomy"}
	case types.ModeSemi:
		if hasPending {
			return GateResult{Outcome: OutcomeHold, Reason: "approval already pending"}
		}
		return GateResult{Outcome: OutcomePendingApproval, Reason: "semi autonomy requires approval"}
	default:
		// Manual mode never self-queues; execution only happens through an
		// explicit trigger that bypasses the gate.
		return GateResult{Outcome: OutcomeHold, Reason: "awaiting manual trigger"}
	}
}
