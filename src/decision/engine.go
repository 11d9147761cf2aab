// Package decision defines the pluggable decision engine boundary and ships
// a built-in momentum engine so the daemon runs without an external model.
package decision

import (
	"context"

	"github.com/helix-markets/agentfleet/src/exchange"
	"github.com/helix-markets/agentfleet/src/types"
)

// Engine produces one trade decision per tick from the agent's configuration
// and fresh market/account state. Implementations are black boxes to the
// orchestrator.
type Engine interface {
	Decide(ctx context.Context, agent *types.Agent, acct *exchange.AccountState, markets []exchange.MarketState) (types.TradeDecision, error)
}

// Func adapts a plain function to Engine.
type Func func(ctx context.Context, agent *types.Agent, acct *exchange.AccountState, markets []exchange.MarketState) (types.TradeDecision, error)

func (f Func) Decide(ctx context.Context, agent *types.Agent, acct *exchange.AccountState, markets []exchange.MarketState) (types.TradeDecision, error) {
	return f(ctx, agent, acct, markets)
}
