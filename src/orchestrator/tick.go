package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helix-markets/agentfleet/src/exchange"
	"github.com/helix-markets/agentfleet/src/execution"
	"github.com/helix-markets/agentfleet/src/types"
)

// runTick performs one evaluate-decide-gate-execute cycle. The returned error
// is a tick-level failure (counted toward health); business rejections are
// recorded in the trade log and do not count as tick failures.
func (s *Supervisor) runTick(ctx context.Context, agentID string) error {
	agent, err := s.store.Agent(ctx, agentID)
	if err != nil {
		return err
	}

	address, err := s.resolver.Address(agentID)
	if err != nil {
		return err
	}
	acct, err := s.venue.AccountState(ctx, address)
	if err != nil {
		return fmt.Errorf("orchestrator: account state: %w", err)
	}

	symbols := agent.MarketList()
	markets := make([]exchange.MarketState, 0, len(symbols))
	for _, sym := range symbols {
		mk, err := s.venue.MarketState(ctx, sym)
		if err != nil {
			return fmt.Errorf("orchestrator: market state %s: %w", sym, err)
		}
		markets = append(markets, *mk)
	}

	d, err := s.engine.Decide(ctx, agent, acct, markets)
	if err != nil {
		return fmt.Errorf("orchestrator: decision engine: %w", err)
	}
	if err := d.Validate(agent.MaxLeverage); err != nil {
		// Malformed decisions are rejected, logged, and never retried.
		return s.logOutcome(ctx, agent, d, "failed", err.Error(), nil, "")
	}

	executedToday, err := s.counter.ExecutedToday(ctx, agentID)
	if err != nil {
		return fmt.Errorf("orchestrator: trade counter: %w", err)
	}
	pending, err := s.approvals.Pending(ctx, agentID)
	if err != nil {
		return err
	}

	gate := EvaluateGate(agent.Autonomy, d, executedToday, pending != nil)
	switch gate.Outcome {
	case OutcomeExecute:
		return s.executeDecision(ctx, agent, d, acct)
	case OutcomePendingApproval:
		pa, err := s.approvals.Create(ctx, agent, d)
		if err != nil {
			if errors.Is(err, ErrApprovalExists) {
				// Raced with an external caller; hold rather than stack.
				return s.logOutcome(ctx, agent, d, "hold", "approval already pending", nil, "")
			}
			return err
		}
		return s.logOutcome(ctx, agent, d, "pending-approval",
			fmt.Sprintf("approval %s expires %s", pa.ID, pa.ExpiresAt.Format(time.RFC3339)), nil, "")
	default:
		return s.logOutcome(ctx, agent, d, "hold", gate.Reason, nil, "")
	}
}

// executeDecision routes an order and records the audit entry. Transient
// venue failures (already retried by the adapter) surface as tick errors;
// business rejections are logged and absorbed.
func (s *Supervisor) executeDecision(ctx context.Context, agent *types.Agent, d types.TradeDecision, acct *exchange.AccountState) error {
	req, leverage, err := execution.BuildOrder(agent, d, acct)
	if err != nil {
		return s.logOutcome(ctx, agent, d, "failed", rejectionReason(err), nil, "")
	}

	res, err := s.router.ExecuteOrder(ctx, agent.ID, req, leverage)
	if err != nil {
		if exchange.IsTransient(err) {
			if logErr := s.logOutcome(ctx, agent, d, "failed", "venue unreachable", nil, err.Error()); logErr != nil {
				return logErr
			}
			return err
		}
		return s.logOutcome(ctx, agent, d, "failed", rejectionReason(err), nil, "")
	}

	if err := s.counter.RecordExecuted(ctx, agent.ID); err != nil {
		s.log.Printf("agent %s: trade counter update failed: %v", agent.ID, err)
	}
	return s.logOutcome(ctx, agent, d, "executed", "", res, "")
}

// ApprovalReport is returned to the caller of Approve/Reject.
type ApprovalReport struct {
	Approval *types.PendingApproval `json:"approval"`
	Executed bool                   `json:"executed"`
	OrderID  string                 `json:"order_id,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Approve resolves a pending approval and executes the held decision in the
// same call. Execution failures are returned to the caller; the approval
// stays approved either way (the verdict was given).
func (s *Supervisor) Approve(ctx context.Context, approvalID string) (*ApprovalReport, error) {
	pa, err := s.approvals.Approve(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	agent, err := s.store.Agent(ctx, pa.AgentID)
	if err != nil {
		return nil, err
	}
	address, err := s.resolver.Address(agent.ID)
	if err != nil {
		return nil, err
	}
	acct, err := s.venue.AccountState(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: account state: %w", err)
	}

	d := pa.Decision()
	rep := &ApprovalReport{Approval: pa}

	req, leverage, err := execution.BuildOrder(agent, d, acct)
	if err != nil {
		rep.Error = err.Error()
		return rep, s.logOutcome(ctx, agent, d, "failed", rejectionReason(err), nil, "")
	}
	res, err := s.router.ExecuteOrder(ctx, agent.ID, req, leverage)
	if err != nil {
		rep.Error = err.Error()
		if logErr := s.logOutcome(ctx, agent, d, "failed", rejectionReason(err), nil, err.Error()); logErr != nil {
			return rep, logErr
		}
		return rep, nil
	}

	rep.Executed = true
	rep.OrderID = res.Order.OrderID
	if err := s.counter.RecordExecuted(ctx, agent.ID); err != nil {
		s.log.Printf("agent %s: trade counter update failed: %v", agent.ID, err)
	}
	return rep, s.logOutcome(ctx, agent, d, "executed", "approved by operator", res, "")
}

// Reject resolves a pending approval with no execution.
func (s *Supervisor) Reject(ctx context.Context, approvalID string) (*ApprovalReport, error) {
	pa, err := s.approvals.Reject(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	agent, err := s.store.Agent(ctx, pa.AgentID)
	if err != nil {
		return nil, err
	}
	rep := &ApprovalReport{Approval: pa}
	return rep, s.logOutcome(ctx, agent, pa.Decision(), "rejected", "rejected by operator", nil, "")
}

// logOutcome appends the audit record for a completed tick or approval
// resolution.
func (s *Supervisor) logOutcome(ctx context.Context, agent *types.Agent, d types.TradeDecision,
	outcome, reason string, res *execution.Result, errText string) error {
	entry := &types.TradeLog{
		ID:         uuid.NewString(),
		AgentID:    agent.ID,
		Action:     d.Action,
		Asset:      d.Asset,
		Size:       d.Size,
		Leverage:   d.Leverage,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
		Executed:   outcome == "executed",
		Outcome:    outcome,
		Reason:     reason,
		Error:      errText,
		CreatedAt:  time.Now().UTC(),
	}
	if res != nil {
		entry.OrderID = res.Order.OrderID
		entry.SigningMethod = res.SigningMethod
	}
	if err := s.store.AppendTradeLog(ctx, entry); err != nil {
		return fmt.Errorf("orchestrator: append trade log: %w", err)
	}
	return nil
}

func rejectionReason(err error) string {
	if code := exchange.ErrCode(err); code != "" {
		return code + ": " + err.Error()
	}
	return err.Error()
}
