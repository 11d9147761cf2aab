package orchestrator

import (
	"context"
	"errors"

	"github.com/helix-markets/agentfleet/src/types"
)

// ErrAgentNotFound is returned for operations against an unknown agent id.
var ErrAgentNotFound = errors.New("orchestrator: agent not found")

// Store is the keyed persistence collaborator. The gorm implementation lives
// in src/data; tests use in-memory fakes.
type Store interface {
	Agent(ctx context.Context, id string) (*types.Agent, error)
	ActiveAgents(ctx context.Context) ([]types.Agent, error)
	AllAgents(ctx context.Context) ([]types.Agent, error)
	SetAgentStatus(ctx context.Context, id, status string) error

	SaveApproval(ctx context.Context, pa *types.PendingApproval) error
	ApprovalByID(ctx context.Context, id string) (*types.PendingApproval, error)
	// PendingApproval returns the agent's approval with status=pending, or
	// (nil, nil) when there is none.
	PendingApproval(ctx context.Context, agentID string) (*types.PendingApproval, error)

	AppendTradeLog(ctx context.Context, entry *types.TradeLog) error
}

// TradeCounter tracks executed trades per agent per UTC day.
type TradeCounter interface {
	ExecutedToday(ctx context.Context, agentID string) (int, error)
	RecordExecuted(ctx context.Context, agentID string) error
}
