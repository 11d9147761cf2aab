package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/helix-markets/agentfleet/src/custody"
)

// Order sides on the venue wire.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Position is one open perp position on the venue.
type Position struct {
	Asset         string
	Side          string // buy (long) or sell (short)
	Size          decimal.Decimal
	EntryPrice    decimal.Decimal
	Leverage      int
	UnrealizedPnL decimal.Decimal
}

// AccountState is a snapshot of the agent's venue account.
type AccountState struct {
	Address      string
	Equity       decimal.Decimal
	Balance      decimal.Decimal
	MarginUsed   decimal.Decimal
	Withdrawable decimal.Decimal
	Positions    []Position
	RetrievedAt  time.Time
}

// PositionFor returns the open position for an asset, if any.
func (a *AccountState) PositionFor(asset string) *Position {
	for i := range a.Positions {
		if a.Positions[i].Asset == asset {
			return &a.Positions[i]
		}
	}
	return nil
}

// MarketState is a snapshot of one market's pricing.
type MarketState struct {
	Asset       string
	MarkPrice   decimal.Decimal
	MidPrice    decimal.Decimal
	Change24h   float64 // fractional 24h change, e.g. 0.031 = +3.1%
	Volume24h   decimal.Decimal
	FundingRate decimal.Decimal
	RetrievedAt time.Time
}

// OrderRequest is a market order sized in account currency.
type OrderRequest struct {
	ID          string
	AgentID     string
	Asset       string
	Side        string
	SizeUSD     decimal.Decimal
	Leverage    int
	ReduceOnly  bool
	SlippageBps int
}

// OrderResult is the uniform fill report regardless of signing path.
type OrderResult struct {
	OrderID  string
	Status   string // filled|resting|rejected
	Filled   bool
	AvgPrice decimal.Decimal
	FilledSz decimal.Decimal
}

// Adapter wraps the venue's account-state, market-data, leverage, and order
// calls. Implementations own retry/backoff for transient failures; business
// rejections pass through untouched.
type Adapter interface {
	AccountState(ctx context.Context, address string) (*AccountState, error)
	MarketState(ctx context.Context, asset string) (*MarketState, error)
	UpdateLeverage(ctx context.Context, signer custody.Signer, asset string, leverage int) error
	SubmitOrder(ctx context.Context, signer custody.Signer, req OrderRequest) (*OrderResult, error)
	BuilderFeeApproved(ctx context.Context, address, builder string) (bool, error)
	ApproveBuilderFee(ctx context.Context, signer custody.Signer, builder string, maxFeeBps int) error
}
