package data

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/helix-markets/agentfleet/src/orchestrator"
	"github.com/helix-markets/agentfleet/src/types"
)

// Store is the gorm-backed persistence collaborator for the orchestrator.
type Store struct {
	db *gorm.DB
}

var _ orchestrator.Store = (*Store)(nil)

// NewStore wraps a connected database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Agent(ctx context.Context, id string) (*types.Agent, error) {
	var agent types.Agent
	err := s.db.WithContext(ctx).First(&agent, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", orchestrator.ErrAgentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("data: load agent: %w", err)
	}
	return &agent, nil
}

func (s *Store) ActiveAgents(ctx context.Context) ([]types.Agent, error) {
	var agents []types.Agent
	if err := s.db.WithContext(ctx).Where("status = ?", types.AgentStatusActive).Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("data: load active agents: %w", err)
	}
	return agents, nil
}

func (s *Store) AllAgents(ctx context.Context) ([]types.Agent, error) {
	var agents []types.Agent
	if err := s.db.WithContext(ctx).Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("data: load agents: %w", err)
	}
	return agents, nil
}

func (s *Store) SetAgentStatus(ctx context.Context, id, status string) error {
	res := s.db.WithContext(ctx).Model(&types.Agent{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("data: set agent status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", orchestrator.ErrAgentNotFound, id)
	}
	return nil
}

func (s *Store) SaveApproval(ctx context.Context, pa *types.PendingApproval) error {
	if err := s.db.WithContext(ctx).Save(pa).Error; err != nil {
		return fmt.Errorf("data: save approval: %w", err)
	}
	return nil
}

func (s *Store) ApprovalByID(ctx context.Context, id string) (*types.PendingApproval, error) {
	var pa types.PendingApproval
	err := s.db.WithContext(ctx).First(&pa, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("data: load approval: %w", err)
	}
	return &pa, nil
}

func (s *Store) PendingApproval(ctx context.Context, agentID string) (*types.PendingApproval, error) {
	var pa types.PendingApproval
	err := s.db.WithContext(ctx).
		Where("agent_id = ? AND status = ?", agentID, types.ApprovalPending).
		First(&pa).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("data: load pending approval: %w", err)
	}
	return &pa, nil
}

func (s *Store) AppendTradeLog(ctx context.Context, entry *types.TradeLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("data: append trade log: %w", err)
	}
	return nil
}

// CustodyBindings loads every agent's custody binding for the resolver.
func (s *Store) CustodyBindings(ctx context.Context) ([]types.CustodyBinding, error) {
	var bindings []types.CustodyBinding
	if err := s.db.WithContext(ctx).Find(&bindings).Error; err != nil {
		return nil, fmt.Errorf("data: load custody bindings: %w", err)
	}
	return bindings, nil
}

// TradeLogs returns the most recent audit entries for an agent.
func (s *Store) TradeLogs(ctx context.Context, agentID string, limit int) ([]types.TradeLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []types.TradeLog
	if err := s.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("data: load trade logs: %w", err)
	}
	return logs, nil
}
