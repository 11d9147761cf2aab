package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helix-markets/agentfleet/src/types"
)

func mkDecision(action string, confidence float64) types.TradeDecision {
	return types.TradeDecision{
		Action:     action,
		Asset:      "BTC",
		Size:       0.1,
		Leverage:   2,
		Confidence: confidence,
	}
}

func TestEvaluateGate(t *testing.T) {
	cfg := func(mode string) types.AutonomyConfig {
		return types.AutonomyConfig{Mode: mode, MinConfidence: 0.75, MaxTradesPerDay: 5}
	}

	tests := []struct {
		name          string
		cfg           types.AutonomyConfig
		decision      types.TradeDecision
		executedToday int
		hasPending    bool
		want          GateOutcome
	}{
		{"hold action never executes", cfg(types.ModeFull), mkDecision(types.ActionHold, 0.99), 0, false, OutcomeHold},
		{"confidence floor in full mode", cfg(types.ModeFull), mkDecision(types.ActionLong, 0.5), 0, false, OutcomeHold},
		{"confidence floor in semi mode", cfg(types.ModeSemi), mkDecision(types.ActionLong, 0.5), 0, false, OutcomeHold},
		{"confidence floor in manual mode", cfg(types.ModeManual), mkDecision(types.ActionLong, 0.5), 0, false, OutcomeHold},
		{"confidence at floor passes", cfg(types.ModeFull), mkDecision(types.ActionLong, 0.75), 0, false, OutcomeExecute},
		{"daily cap reached", cfg(types.ModeFull), mkDecision(types.ActionLong, 0.9), 5, false, OutcomeHold},
		{"daily cap exceeded", cfg(types.ModeFull), mkDecision(types.ActionLong, 0.9), 7, false, OutcomeHold},
		{"one below cap executes", cfg(types.ModeFull), mkDecision(types.ActionLong, 0.9), 4, false, OutcomeExecute},
		{"full mode executes", cfg(types.ModeFull), mkDecision(types.ActionShort, 0.9), 0, false, OutcomeExecute},
		{"semi mode queues approval", cfg(types.ModeSemi), mkDecision(types.ActionLong, 0.9), 0, false, OutcomePendingApproval},
		{"semi mode never stacks approvals", cfg(types.ModeSemi), mkDecision(types.ActionLong, 0.9), 0, true, OutcomeHold},
		{"manual mode never self-queues", cfg(types.ModeManual), mkDecision(types.ActionLong, 0.9), 0, false, OutcomeHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateGate(tt.cfg, tt.decision, tt.executedToday, tt.hasPending)
			assert.Equal(t, tt.want, got.Outcome)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestEvaluateGateManualAboveFloor(t *testing.T) {
	// Manual mode holds even when the decision clears every numeric check.
	got := EvaluateGate(
		types.AutonomyConfig{Mode: types.ModeManual, MinConfidence: 0.75, MaxTradesPerDay: 10},
		mkDecision(types.ActionLong, 0.9), 0, false)
	assert.Equal(t, OutcomeHold, got.Outcome)
	assert.Equal(t, "awaiting manual trigger", got.Reason)
}

func TestEvaluateGateUnsetCap(t *testing.T) {
	// MaxTradesPerDay <= 0 means no cap.
	cfg := types.AutonomyConfig{Mode: types.ModeFull, MinConfidence: 0.5}
	got := EvaluateGate(cfg, mkDecision(types.ActionLong, 0.9), 1000, false)
	assert.Equal(t, OutcomeExecute, got.Outcome)
}

func TestResolveMinConfidenceFromAggressiveness(t *testing.T) {
	tests := []struct {
		aggressiveness int
		want           float64
	}{
		{0, 1.0},
		{50, 0.75},
		{100, 0.5},
	}
	for _, tt := range tests {
		cfg := types.AutonomyConfig{Aggressiveness: tt.aggressiveness}
		assert.InDelta(t, tt.want, cfg.ResolveMinConfidence(), 1e-9)
	}

	// An explicit floor wins over the derived one.
	cfg := types.AutonomyConfig{Aggressiveness: 100, MinConfidence: 0.9}
	assert.InDelta(t, 0.9, cfg.ResolveMinConfidence(), 1e-9)
}
