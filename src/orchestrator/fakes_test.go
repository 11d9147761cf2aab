package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/helix-markets/agentfleet/src/custody"
	"github.com/helix-markets/agentfleet/src/decision"
	"github.com/helix-markets/agentfleet/src/exchange"
	"github.com/helix-markets/agentfleet/src/execution"
	"github.com/helix-markets/agentfleet/src/types"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu        sync.Mutex
	agents    map[string]*types.Agent
	approvals map[string]*types.PendingApproval
	logs      []types.TradeLog
}

func newFakeStore(agents ...*types.Agent) *fakeStore {
	s := &fakeStore{
		agents:    make(map[string]*types.Agent),
		approvals: make(map[string]*types.PendingApproval),
	}
	for _, a := range agents {
		s.agents[a.ID] = a
	}
	return s
}

func (s *fakeStore) Agent(_ context.Context, id string) (*types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) ActiveAgents(context.Context) ([]types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Agent
	for _, a := range s.agents {
		if a.Status == types.AgentStatusActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeStore) AllAgents(context.Context) ([]types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Agent
	for _, a := range s.agents {
		out = append(out, *a)
	}
	return out, nil
}

func (s *fakeStore) SetAgentStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	a.Status = status
	return nil
}

func (s *fakeStore) SaveApproval(_ context.Context, pa *types.PendingApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pa
	s.approvals[pa.ID] = &cp
	return nil
}

func (s *fakeStore) ApprovalByID(_ context.Context, id string) (*types.PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pa, ok := s.approvals[id]
	if !ok {
		return nil, nil
	}
	cp := *pa
	return &cp, nil
}

func (s *fakeStore) PendingApproval(_ context.Context, agentID string) (*types.PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pa := range s.approvals {
		if pa.AgentID == agentID && pa.Status == types.ApprovalPending {
			cp := *pa
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) AppendTradeLog(_ context.Context, entry *types.TradeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *fakeStore) tradeLogs() []types.TradeLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TradeLog, len(s.logs))
	copy(out, s.logs)
	return out
}

func (s *fakeStore) pendingCount(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, pa := range s.approvals {
		if pa.AgentID == agentID && pa.Status == types.ApprovalPending {
			n++
		}
	}
	return n
}

// fakeCounter is an in-memory TradeCounter without daily rollover.
type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: make(map[string]int)}
}

func (c *fakeCounter) ExecutedToday(_ context.Context, agentID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[agentID], nil
}

func (c *fakeCounter) RecordExecuted(_ context.Context, agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[agentID]++
	return nil
}

// fakeSigner satisfies custody.Signer without real key material.
type fakeSigner struct {
	addr   string
	method string
}

func (s fakeSigner) Address() string { return s.addr }
func (s fakeSigner) Method() string  { return s.method }
func (s fakeSigner) SignPayload(context.Context, []byte) ([]byte, error) {
	return []byte("sig"), nil
}

// fakeResolver binds every agent to one direct-key fake signer.
type fakeResolver struct{}

func (fakeResolver) IsThresholdSigner(string) (bool, error) { return false, nil }
func (fakeResolver) Address(string) (string, error)         { return "0xfeed", nil }
func (fakeResolver) SignerFor(string) (custody.Signer, error) {
	return fakeSigner{addr: "0xfeed", method: "direct"}, nil
}

// fakeVenue implements exchange.Adapter with per-test hooks.
type fakeVenue struct {
	mu sync.Mutex

	accountErr  error
	accountHook func() // runs inside AccountState, for stalling ticks
	market      exchange.MarketState
	submitErr   error
	leverageErr error

	orders          []exchange.OrderRequest
	leverageUpdates []int
	feeApprovals    int
	feeApproved     bool
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		market: exchange.MarketState{
			Asset:     "BTC",
			MarkPrice: decimal.NewFromInt(50000),
			Change24h: 0.05,
		},
	}
}

func (v *fakeVenue) AccountState(context.Context, string) (*exchange.AccountState, error) {
	v.mu.Lock()
	hook := v.accountHook
	err := v.accountErr
	v.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &exchange.AccountState{
		Address: "0xfeed",
		Equity:  decimal.NewFromInt(10000),
		Balance: decimal.NewFromInt(10000),
	}, nil
}

func (v *fakeVenue) MarketState(_ context.Context, asset string) (*exchange.MarketState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	mk := v.market
	mk.Asset = asset
	return &mk, nil
}

func (v *fakeVenue) UpdateLeverage(_ context.Context, _ custody.Signer, _ string, leverage int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.leverageErr != nil {
		return v.leverageErr
	}
	v.leverageUpdates = append(v.leverageUpdates, leverage)
	return nil
}

func (v *fakeVenue) SubmitOrder(_ context.Context, _ custody.Signer, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.submitErr != nil {
		return nil, v.submitErr
	}
	v.orders = append(v.orders, req)
	return &exchange.OrderResult{
		OrderID:  "ord-" + req.ID,
		Status:   "filled",
		Filled:   true,
		AvgPrice: decimal.NewFromInt(50000),
	}, nil
}

func (v *fakeVenue) BuilderFeeApproved(context.Context, string, string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.feeApproved, nil
}

func (v *fakeVenue) ApproveBuilderFee(context.Context, custody.Signer, string, int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.feeApprovals++
	v.feeApproved = true
	return nil
}

func (v *fakeVenue) orderCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.orders)
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type testEnv struct {
	store   *fakeStore
	counter *fakeCounter
	venue   *fakeVenue
	sup     *Supervisor
}

// newTestEnv wires a supervisor over fakes. engine may be nil, in which case
// a fixed confident long decision is produced each tick.
func newTestEnv(engine decision.Engine, opts Options, agents ...*types.Agent) *testEnv {
	store := newFakeStore(agents...)
	counter := newFakeCounter()
	venue := newFakeVenue()
	if engine == nil {
		engine = decision.Func(func(context.Context, *types.Agent, *exchange.AccountState, []exchange.MarketState) (types.TradeDecision, error) {
			return types.TradeDecision{
				Action:     types.ActionLong,
				Asset:      "BTC",
				Size:       0.1,
				Leverage:   2,
				Confidence: 0.9,
				Reasoning:  "test",
			}, nil
		})
	}
	router := execution.NewRouter(fakeResolver{}, venue, "", 0, testLogger())
	sup := New(store, counter, venue, fakeResolver{}, router, engine, opts, testLogger())
	return &testEnv{store: store, counter: counter, venue: venue, sup: sup}
}

func testAgent(id, mode string) *types.Agent {
	return &types.Agent{
		ID:          id,
		Name:        "agent " + id,
		Status:      types.AgentStatusPaused,
		Markets:     "BTC",
		MaxLeverage: 10,
		RiskLevel:   "balanced",
		Autonomy: types.AutonomyConfig{
			Mode:              mode,
			MinConfidence:     0.6,
			MaxTradesPerDay:   10,
			ApprovalTimeoutMs: int64(time.Minute / time.Millisecond),
		},
	}
}
