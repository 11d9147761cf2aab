package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helix-markets/agentfleet/src/types"
)

var (
	ErrApprovalNotFound   = errors.New("orchestrator: approval not found")
	ErrApprovalNotPending = errors.New("orchestrator: approval is not pending")
	ErrApprovalExpired    = errors.New("orchestrator: approval has expired")
	ErrApprovalExists     = errors.New("orchestrator: agent already has a pending approval")
)

// Approvals owns the pending -> approved/rejected/expired state machine.
// Expiry is evaluated lazily on every read: a pending approval past its
// deadline transitions to expired before any other operation can act on it,
// and terminal states are immutable. The mutex makes check-then-create atomic
// against concurrent approve/reject calls from external callers.
type Approvals struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
	log   *log.Logger
}

// NewApprovals builds the approval book on top of the store.
func NewApprovals(store Store, logger *log.Logger) *Approvals {
	return &Approvals{store: store, now: time.Now, log: logger}
}

// Pending returns the agent's pending approval after lazy expiry, or nil.
func (a *Approvals) Pending(ctx context.Context, agentID string) (*types.PendingApproval, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pendingLocked(ctx, agentID)
}

func (a *Approvals) pendingLocked(ctx context.Context, agentID string) (*types.PendingApproval, error) {
	pa, err := a.store.PendingApproval(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if pa == nil {
		return nil, nil
	}
	if expired, err := a.expireIfDue(ctx, pa); err != nil {
		return nil, err
	} else if expired {
		return nil, nil
	}
	return pa, nil
}

// Create records a new pending approval for the agent's decision. At most one
// pending approval exists per agent; a second is rejected, never stacked.
func (a *Approvals) Create(ctx context.Context, agent *types.Agent, d types.TradeDecision) (*types.PendingApproval, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, err := a.pendingLocked(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrApprovalExists
	}

	now := a.now().UTC()
	pa := &types.PendingApproval{
		ID:         uuid.NewString(),
		AgentID:    agent.ID,
		Status:     types.ApprovalPending,
		Action:     d.Action,
		Asset:      d.Asset,
		Size:       d.Size,
		Leverage:   d.Leverage,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
		CreatedAt:  now,
		ExpiresAt:  now.Add(agent.Autonomy.ApprovalTimeout()),
	}
	if err := a.store.SaveApproval(ctx, pa); err != nil {
		return nil, fmt.Errorf("orchestrator: save approval: %w", err)
	}
	a.log.Printf("agent %s: approval %s pending until %s (%s %s)",
		agent.ID, pa.ID, pa.ExpiresAt.Format(time.RFC3339), pa.Action, pa.Asset)
	return pa, nil
}

// Approve transitions a pending approval to approved. Approving a non-pending
// or expired approval is a reported error, never silently ignored. Execution
// of the held decision is the caller's next step in the same call.
func (a *Approvals) Approve(ctx context.Context, id string) (*types.PendingApproval, error) {
	return a.resolve(ctx, id, types.ApprovalApproved)
}

// Reject transitions a pending approval to rejected. No execution occurs.
func (a *Approvals) Reject(ctx context.Context, id string) (*types.PendingApproval, error) {
	return a.resolve(ctx, id, types.ApprovalRejected)
}

func (a *Approvals) resolve(ctx context.Context, id, verdict string) (*types.PendingApproval, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pa, err := a.store.ApprovalByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pa == nil {
		return nil, ErrApprovalNotFound
	}
	if expired, err := a.expireIfDue(ctx, pa); err != nil {
		return nil, err
	} else if expired {
		return nil, ErrApprovalExpired
	}
	if pa.Status != types.ApprovalPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrApprovalNotPending, id, pa.Status)
	}

	now := a.now().UTC()
	pa.Status = verdict
	pa.ResolvedAt = &now
	if err := a.store.SaveApproval(ctx, pa); err != nil {
		return nil, fmt.Errorf("orchestrator: save approval: %w", err)
	}
	a.log.Printf("agent %s: approval %s %s", pa.AgentID, pa.ID, verdict)
	return pa, nil
}

// expireIfDue applies the lazy expiry transition. The expiry is itself an
// approval resolution, so it appends a trade-log entry.
func (a *Approvals) expireIfDue(ctx context.Context, pa *types.PendingApproval) (bool, error) {
	if pa.Status != types.ApprovalPending || !pa.ExpiredAt(a.now()) {
		return pa.Status == types.ApprovalExpired, nil
	}
	now := a.now().UTC()
	pa.Status = types.ApprovalExpired
	pa.ResolvedAt = &now
	if err := a.store.SaveApproval(ctx, pa); err != nil {
		return false, fmt.Errorf("orchestrator: expire approval: %w", err)
	}
	entry := &types.TradeLog{
		ID:         uuid.NewString(),
		AgentID:    pa.AgentID,
		Action:     pa.Action,
		Asset:      pa.Asset,
		Size:       pa.Size,
		Leverage:   pa.Leverage,
		Confidence: pa.Confidence,
		Reasoning:  pa.Reasoning,
		Executed:   false,
		Outcome:    "expired",
		Reason:     "approval expired before resolution",
		CreatedAt:  now,
	}
	if err := a.store.AppendTradeLog(ctx, entry); err != nil {
		return false, fmt.Errorf("orchestrator: log expiry: %w", err)
	}
	a.log.Printf("agent %s: approval %s expired", pa.AgentID, pa.ID)
	return true, nil
}
