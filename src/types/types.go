package types

import (
	"fmt"
	"strings"
	"time"
)

// Agent status values.
const (
	AgentStatusActive  = "active"
	AgentStatusPaused  = "paused"
	AgentStatusStopped = "stopped"
)

// Autonomy modes.
const (
	ModeManual = "manual"
	ModeSemi   = "semi"
	ModeFull   = "full"
)

// Agent is the durable configuration of one trading agent. Runtime state
// (scheduler, health) lives in the orchestrator and is rebuilt from Status.
type Agent struct {
	ID              string `gorm:"primaryKey;size:64"`
	Name            string `gorm:"size:128"`
	Status          string `gorm:"size:16;not null;default:paused"`
	Markets         string `gorm:"size:512"` // comma-separated symbols, e.g. "BTC,ETH"
	MaxLeverage     int    `gorm:"not null;default:1"`
	RiskLevel       string `gorm:"size:16"` // conservative|balanced|aggressive
	StopLossPercent float64
	VaultAddress    string         `gorm:"size:64"`
	Autonomy        AutonomyConfig `gorm:"embedded;embeddedPrefix:autonomy_"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MarketList splits the stored symbol list.
func (a *Agent) MarketList() []string {
	if strings.TrimSpace(a.Markets) == "" {
		return nil
	}
	parts := strings.Split(a.Markets, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, strings.ToUpper(s))
		}
	}
	return out
}

// TradesMarket reports whether the agent is configured for the symbol.
func (a *Agent) TradesMarket(symbol string) bool {
	for _, m := range a.MarketList() {
		if strings.EqualFold(m, symbol) {
			return true
		}
	}
	return false
}

// AutonomyConfig controls how much a decision may do without a human.
type AutonomyConfig struct {
	Mode              string  `gorm:"size:8;not null;default:manual"`
	Aggressiveness    int     // 0..100, tuning knob for the confidence floor
	MinConfidence     float64 // 0..1; zero means "derive from aggressiveness"
	MaxTradesPerDay   int
	ApprovalTimeoutMs int64
}

// ResolveMinConfidence returns the confidence floor the gate should apply.
// An explicit MinConfidence wins; otherwise the floor is derived linearly
// from aggressiveness (more aggressive, lower floor).
func (c AutonomyConfig) ResolveMinConfidence() float64 {
	if c.MinConfidence > 0 {
		if c.MinConfidence > 1 {
			return 1
		}
		return c.MinConfidence
	}
	agg := c.Aggressiveness
	if agg < 0 {
		agg = 0
	}
	if agg > 100 {
		agg = 100
	}
	return 1 - float64(agg)/100*0.5
}

// ApprovalTimeout returns the configured pending-approval lifetime.
func (c AutonomyConfig) ApprovalTimeout() time.Duration {
	if c.ApprovalTimeoutMs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ApprovalTimeoutMs) * time.Millisecond
}

// Trade decision actions.
const (
	ActionLong  = "long"
	ActionShort = "short"
	ActionClose = "close"
	ActionHold  = "hold"
)

// TradeDecision is the immutable output of a decision engine for one tick.
type TradeDecision struct {
	Action     string  `json:"action"`
	Asset      string  `json:"asset"`
	Size       float64 `json:"size"`     // fraction of allocatable capital, (0,1]
	Leverage   int     `json:"leverage"` // 1..agent.MaxLeverage
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Validate checks the decision against structural bounds and the agent's
// leverage cap. Hold decisions carry no size/leverage requirements.
func (d TradeDecision) Validate(maxLeverage int) error {
	switch d.Action {
	case ActionHold:
		return nil
	case ActionLong, ActionShort, ActionClose:
	default:
		return fmt.Errorf("types: unknown action %q", d.Action)
	}
	if d.Asset == "" {
		return fmt.Errorf("types: decision missing asset")
	}
	if d.Size <= 0 || d.Size > 1 {
		return fmt.Errorf("types: decision size %v outside (0,1]", d.Size)
	}
	if d.Leverage < 1 {
		return fmt.Errorf("types: decision leverage %d below 1", d.Leverage)
	}
	if maxLeverage > 0 && d.Leverage > maxLeverage {
		return fmt.Errorf("types: decision leverage %d exceeds agent cap %d", d.Leverage, maxLeverage)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("types: decision confidence %v outside [0,1]", d.Confidence)
	}
	return nil
}

// Approval status values. Terminal states are immutable.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
	ApprovalExpired  = "expired"
)

// PendingApproval holds a gated decision awaiting a human verdict.
// At most one pending approval exists per agent at any time.
type PendingApproval struct {
	ID         string `gorm:"primaryKey;size:64"`
	AgentID    string `gorm:"index;size:64;not null"`
	Status     string `gorm:"size:16;not null"`
	Action     string `gorm:"size:8;not null"`
	Asset      string `gorm:"size:32;not null"`
	Size       float64
	Leverage   int
	Confidence float64
	Reasoning  string `gorm:"type:text"`
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ResolvedAt *time.Time
}

// Decision reconstructs the held decision.
func (p *PendingApproval) Decision() TradeDecision {
	return TradeDecision{
		Action:     p.Action,
		Asset:      p.Asset,
		Size:       p.Size,
		Leverage:   p.Leverage,
		Confidence: p.Confidence,
		Reasoning:  p.Reasoning,
	}
}

// ExpiredAt reports whether the approval has passed its deadline at now.
func (p *PendingApproval) ExpiredAt(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// TradeLog is the append-only audit record, one per completed tick or
// approval resolution.
type TradeLog struct {
	ID            string `gorm:"primaryKey;size:64"`
	AgentID       string `gorm:"index;size:64;not null"`
	Action        string `gorm:"size:8"`
	Asset         string `gorm:"size:32"`
	Size          float64
	Leverage      int
	Confidence    float64
	Reasoning     string `gorm:"type:text"`
	Executed      bool
	Outcome       string `gorm:"size:24"` // executed|hold|pending-approval|rejected|expired|failed
	Reason        string `gorm:"size:255"`
	OrderID       string `gorm:"size:64"`
	SigningMethod string `gorm:"size:16"`
	Error         string `gorm:"size:512"`
	CreatedAt     time.Time
}

// Custody schemes. Exactly one applies per agent.
const (
	CustodyThreshold = "pkp"
	CustodyDirectKey = "direct"
)

// CustodyBinding maps an agent to its venue address and signing scheme.
// For direct custody KeyRef names the environment variable holding the hex
// key; for threshold custody it is the remote wallet identifier.
type CustodyBinding struct {
	AgentID   string `gorm:"primaryKey;size:64"`
	Address   string `gorm:"size:64;not null"`
	Scheme    string `gorm:"size:8;not null"`
	KeyRef    string `gorm:"size:128"`
	CreatedAt time.Time
}

// Setting is a name/value configuration row with env fallback at load time.
type Setting struct {
	ID    uint8  `gorm:"primaryKey"`
	Name  string `gorm:"size:64;uniqueIndex"`
	Value string `gorm:"size:512"`
}
