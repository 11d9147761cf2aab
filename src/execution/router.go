// Package execution routes orders to the venue through the agent's resolved
// signing backend.
package execution

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/helix-markets/agentfleet/src/custody"
	"github.com/helix-markets/agentfleet/src/exchange"
	"github.com/helix-markets/agentfleet/src/types"
)

// Result is the signer-agnostic execution report.
type Result struct {
	Order         *exchange.OrderResult
	SigningMethod string
}

// Router resolves custody, handles the one-time builder-fee approval, applies
// leverage before the order, and submits through exactly one signing path.
type Router struct {
	resolver custody.Resolver
	venue    exchange.Adapter
	builder  string
	feeBps   int
	log      *log.Logger

	mu          sync.Mutex
	feeApproved map[string]bool
}

// NewRouter wires a router. builder is the venue builder address whose fee
// must be pre-approved once per agent; empty disables the check.
func NewRouter(resolver custody.Resolver, venue exchange.Adapter, builder string, feeBps int, logger *log.Logger) *Router {
	return &Router{
		resolver:    resolver,
		venue:       venue,
		builder:     builder,
		feeBps:      feeBps,
		log:         logger,
		feeApproved: make(map[string]bool),
	}
}

// ExecuteOrder submits one order for the agent. When leverage is non-nil the
// venue leverage is updated first; a leverage failure aborts the whole call so
// an order is never placed at an unintended leverage.
func (r *Router) ExecuteOrder(ctx context.Context, agentID string, req exchange.OrderRequest, leverage *int) (*Result, error) {
	signer, err := r.resolver.SignerFor(agentID)
	if err != nil {
		return nil, err
	}

	if err := r.ensureBuilderFee(ctx, agentID, signer); err != nil {
		return nil, err
	}

	if leverage != nil {
		if err := r.venue.UpdateLeverage(ctx, signer, req.Asset, *leverage); err != nil {
			return nil, fmt.Errorf("execution: leverage update failed, order aborted: %w", err)
		}
		req.Leverage = *leverage
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.AgentID = agentID

	order, err := r.venue.SubmitOrder(ctx, signer, req)
	if err != nil {
		return nil, err
	}
	r.log.Printf("agent %s order %s %s %s %s via %s: %s",
		agentID, req.ID, req.Side, req.SizeUSD, req.Asset, signer.Method(), order.Status)
	return &Result{Order: order, SigningMethod: signer.Method()}, nil
}

// ensureBuilderFee grants the builder-fee allowance once per agent before its
// first real order. The check-then-approve is serialized so concurrent first
// orders cannot double-approve.
func (r *Router) ensureBuilderFee(ctx context.Context, agentID string, signer custody.Signer) error {
	if r.builder == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.feeApproved[agentID] {
		return nil
	}
	approved, err := r.venue.BuilderFeeApproved(ctx, signer.Address(), r.builder)
	if err != nil {
		return fmt.Errorf("execution: builder fee check: %w", err)
	}
	if !approved {
		if err := r.venue.ApproveBuilderFee(ctx, signer, r.builder, r.feeBps); err != nil {
			return fmt.Errorf("execution: builder fee approval: %w", err)
		}
		r.log.Printf("agent %s: builder fee approved for %s", agentID, r.builder)
	}
	r.feeApproved[agentID] = true
	return nil
}

// BuildOrder turns a gated decision into a venue order sized against the
// account. Close decisions become reduce-only orders opposite the open
// position.
func BuildOrder(agent *types.Agent, d types.TradeDecision, acct *exchange.AccountState) (exchange.OrderRequest, *int, error) {
	req := exchange.OrderRequest{
		ID:          uuid.NewString(),
		AgentID:     agent.ID,
		Asset:       d.Asset,
		SlippageBps: 50,
	}

	switch d.Action {
	case types.ActionLong:
		req.Side = exchange.SideBuy
	case types.ActionShort:
		req.Side = exchange.SideSell
	case types.ActionClose:
		pos := acct.PositionFor(d.Asset)
		if pos == nil {
			return req, nil, exchange.RejectErr(exchange.CodeOrderRejected,
				fmt.Sprintf("no open %s position to close", d.Asset))
		}
		req.ReduceOnly = true
		if pos.Side == exchange.SideBuy {
			req.Side = exchange.SideSell
		} else {
			req.Side = exchange.SideBuy
		}
		req.SizeUSD = pos.Size.Mul(pos.EntryPrice)
		return req, nil, nil
	default:
		return req, nil, fmt.Errorf("execution: action %q is not executable", d.Action)
	}

	size := decimal.NewFromFloat(d.Size)
	req.SizeUSD = acct.Equity.Mul(size).Round(2)
	if req.SizeUSD.Sign() <= 0 {
		return req, nil, exchange.RejectErr(exchange.CodeInsufficientMargin, "computed order size is zero")
	}
	lev := d.Leverage
	return req, &lev, nil
}
