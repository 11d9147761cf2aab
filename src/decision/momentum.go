package decision

import (
	"context"
	"fmt"
	"math"

	"github.com/helix-markets/agentfleet/src/exchange"
	"github.com/helix-markets/agentfleet/src/types"
)

// Momentum is a rule-based engine: follow the strongest 24h move among the
// agent's markets, hold on flat tape. Confidence scales with the magnitude of
// the move so the autonomy gate's floor stays meaningful.
type Momentum struct {
	// Threshold is the minimum absolute 24h change (fraction) worth trading.
	Threshold float64
	// FullSignal is the change at which confidence saturates at 1.0.
	FullSignal float64
}

// NewMomentum returns an engine with conservative defaults.
func NewMomentum() *Momentum {
	return &Momentum{Threshold: 0.01, FullSignal: 0.08}
}

func (m *Momentum) Decide(_ context.Context, agent *types.Agent, acct *exchange.AccountState, markets []exchange.MarketState) (types.TradeDecision, error) {
	if len(markets) == 0 {
		return types.TradeDecision{Action: types.ActionHold, Reasoning: "no market data"}, nil
	}

	best := markets[0]
	for _, mk := range markets[1:] {
		if math.Abs(mk.Change24h) > math.Abs(best.Change24h) {
			best = mk
		}
	}

	move := best.Change24h
	if math.Abs(move) < m.Threshold {
		return types.TradeDecision{
			Action:    types.ActionHold,
			Asset:     best.Asset,
			Reasoning: fmt.Sprintf("%s 24h change %.2f%% below threshold", best.Asset, move*100),
		}, nil
	}

	// Close against the trend before flipping.
	if pos := acct.PositionFor(best.Asset); pos != nil {
		long := pos.Side == exchange.SideBuy
		if (long && move < 0) || (!long && move > 0) {
			return types.TradeDecision{
				Action:     types.ActionClose,
				Asset:      best.Asset,
				Size:       1,
				Leverage:   1,
				Confidence: m.confidence(move),
				Reasoning:  fmt.Sprintf("momentum reversed against open %s position", best.Asset),
			}, nil
		}
		return types.TradeDecision{
			Action:    types.ActionHold,
			Asset:     best.Asset,
			Reasoning: "position already aligned with momentum",
		}, nil
	}

	action := types.ActionLong
	if move < 0 {
		action = types.ActionShort
	}
	return types.TradeDecision{
		Action:     action,
		Asset:      best.Asset,
		Size:       sizeForRisk(agent.RiskLevel),
		Leverage:   leverageForRisk(agent.RiskLevel, agent.MaxLeverage),
		Confidence: m.confidence(move),
		Reasoning:  fmt.Sprintf("%s moved %.2f%% in 24h", best.Asset, move*100),
	}, nil
}

func (m *Momentum) confidence(move float64) float64 {
	full := m.FullSignal
	if full <= m.Threshold {
		full = m.Threshold * 2
	}
	c := (math.Abs(move) - m.Threshold) / (full - m.Threshold)
	// Anything past the threshold starts at 0.5; saturates at 1.0.
	c = 0.5 + c/2
	if c > 1 {
		c = 1
	}
	return c
}

func sizeForRisk(risk string) float64 {
	switch risk {
	case "aggressive":
		return 0.25
	case "balanced":
		return 0.1
	default:
		return 0.05
	}
}

func leverageForRisk(risk string, max int) int {
	if max < 1 {
		max = 1
	}
	want := 2
	switch risk {
	case "aggressive":
		want = 5
	case "balanced":
		want = 3
	}
	if want > max {
		return max
	}
	return want
}
