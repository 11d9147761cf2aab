package execution

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-markets/agentfleet/src/custody"
	"github.com/helix-markets/agentfleet/src/exchange"
	"github.com/helix-markets/agentfleet/src/types"
)

type stubSigner struct {
	addr   string
	method string
}

func (s stubSigner) Address() string { return s.addr }
func (s stubSigner) Method() string  { return s.method }
func (s stubSigner) SignPayload(context.Context, []byte) ([]byte, error) {
	return []byte("sig"), nil
}

type stubResolver struct {
	signer custody.Signer
	err    error
}

func (r stubResolver) IsThresholdSigner(string) (bool, error) { return false, nil }
func (r stubResolver) Address(string) (string, error)         { return r.signer.Address(), r.err }
func (r stubResolver) SignerFor(string) (custody.Signer, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.signer, nil
}

type stubVenue struct {
	mu sync.Mutex

	leverageErr error
	submitErr   error
	feeApproved bool

	leverageCalls []int
	orders        []exchange.OrderRequest
	feeChecks     int
	feeApprovals  int
}

func (v *stubVenue) AccountState(context.Context, string) (*exchange.AccountState, error) {
	return &exchange.AccountState{}, nil
}

func (v *stubVenue) MarketState(context.Context, string) (*exchange.MarketState, error) {
	return &exchange.MarketState{}, nil
}

func (v *stubVenue) UpdateLeverage(_ context.Context, _ custody.Signer, _ string, leverage int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.leverageErr != nil {
		return v.leverageErr
	}
	v.leverageCalls = append(v.leverageCalls, leverage)
	return nil
}

func (v *stubVenue) SubmitOrder(_ context.Context, _ custody.Signer, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.submitErr != nil {
		return nil, v.submitErr
	}
	v.orders = append(v.orders, req)
	return &exchange.OrderResult{OrderID: "ord-1", Status: "filled", Filled: true}, nil
}

func (v *stubVenue) BuilderFeeApproved(context.Context, string, string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.feeChecks++
	return v.feeApproved, nil
}

func (v *stubVenue) ApproveBuilderFee(context.Context, custody.Signer, string, int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.feeApprovals++
	v.feeApproved = true
	return nil
}

func newTestRouter(venue *stubVenue, builder string) *Router {
	resolver := stubResolver{signer: stubSigner{addr: "0xabc", method: "direct"}}
	return NewRouter(resolver, venue, builder, 10, log.New(io.Discard, "", 0))
}

func TestExecuteOrderUpdatesLeverageFirst(t *testing.T) {
	venue := &stubVenue{}
	r := newTestRouter(venue, "")

	lev := 5
	res, err := r.ExecuteOrder(context.Background(), "a1", exchange.OrderRequest{
		Asset:   "BTC",
		Side:    exchange.SideBuy,
		SizeUSD: decimal.NewFromInt(1000),
	}, &lev)
	require.NoError(t, err)

	assert.Equal(t, []int{5}, venue.leverageCalls)
	require.Len(t, venue.orders, 1)
	assert.Equal(t, 5, venue.orders[0].Leverage)
	assert.Equal(t, "direct", res.SigningMethod)
	assert.Equal(t, "ord-1", res.Order.OrderID)
}

func TestExecuteOrderLeverageFailureAbortsOrder(t *testing.T) {
	venue := &stubVenue{leverageErr: exchange.TransientErr(exchange.CodeUnavailable, "down")}
	r := newTestRouter(venue, "")

	lev := 5
	_, err := r.ExecuteOrder(context.Background(), "a1", exchange.OrderRequest{
		Asset:   "BTC",
		Side:    exchange.SideBuy,
		SizeUSD: decimal.NewFromInt(1000),
	}, &lev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order aborted")
	assert.Empty(t, venue.orders)
}

func TestExecuteOrderWithoutLeverageSkipsUpdate(t *testing.T) {
	venue := &stubVenue{leverageErr: exchange.TransientErr(exchange.CodeUnavailable, "down")}
	r := newTestRouter(venue, "")

	// Reduce-only closes carry no leverage change, so the broken leverage
	// endpoint must not block them.
	_, err := r.ExecuteOrder(context.Background(), "a1", exchange.OrderRequest{
		Asset:      "BTC",
		Side:       exchange.SideSell,
		SizeUSD:    decimal.NewFromInt(1000),
		ReduceOnly: true,
	}, nil)
	require.NoError(t, err)
	assert.Len(t, venue.orders, 1)
}

func TestBuilderFeeApprovedOncePerAgent(t *testing.T) {
	venue := &stubVenue{}
	r := newTestRouter(venue, "0xbuilder")
	ctx := context.Background()
	req := exchange.OrderRequest{Asset: "BTC", Side: exchange.SideBuy, SizeUSD: decimal.NewFromInt(100)}

	_, err := r.ExecuteOrder(ctx, "a1", req, nil)
	require.NoError(t, err)
	_, err = r.ExecuteOrder(ctx, "a1", req, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, venue.feeApprovals)
	assert.Equal(t, 1, venue.feeChecks)
}

func TestBuilderFeeSkipsWhenAlreadyOnChain(t *testing.T) {
	venue := &stubVenue{feeApproved: true}
	r := newTestRouter(venue, "0xbuilder")

	_, err := r.ExecuteOrder(context.Background(), "a1",
		exchange.OrderRequest{Asset: "BTC", Side: exchange.SideBuy, SizeUSD: decimal.NewFromInt(100)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, venue.feeApprovals)
}

func TestBuilderFeeDisabledWithoutBuilder(t *testing.T) {
	venue := &stubVenue{}
	r := newTestRouter(venue, "")

	_, err := r.ExecuteOrder(context.Background(), "a1",
		exchange.OrderRequest{Asset: "BTC", Side: exchange.SideBuy, SizeUSD: decimal.NewFromInt(100)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, venue.feeChecks)
	assert.Equal(t, 0, venue.feeApprovals)
}

func TestBuildOrderSides(t *testing.T) {
	agent := &types.Agent{ID: "a1", MaxLeverage: 10}
	acct := &exchange.AccountState{Equity: decimal.NewFromInt(10000)}

	req, lev, err := BuildOrder(agent, types.TradeDecision{
		Action: types.ActionLong, Asset: "BTC", Size: 0.25, Leverage: 3, Confidence: 0.9,
	}, acct)
	require.NoError(t, err)
	assert.Equal(t, exchange.SideBuy, req.Side)
	assert.True(t, req.SizeUSD.Equal(decimal.NewFromInt(2500)))
	require.NotNil(t, lev)
	assert.Equal(t, 3, *lev)

	req, _, err = BuildOrder(agent, types.TradeDecision{
		Action: types.ActionShort, Asset: "ETH", Size: 0.1, Leverage: 2, Confidence: 0.9,
	}, acct)
	require.NoError(t, err)
	assert.Equal(t, exchange.SideSell, req.Side)
}

func TestBuildOrderCloseIsReduceOnly(t *testing.T) {
	agent := &types.Agent{ID: "a1", MaxLeverage: 10}
	acct := &exchange.AccountState{
		Equity: decimal.NewFromInt(10000),
		Positions: []exchange.Position{{
			Asset:      "BTC",
			Side:       exchange.SideBuy,
			Size:       decimal.NewFromFloat(0.1),
			EntryPrice: decimal.NewFromInt(50000),
		}},
	}

	req, lev, err := BuildOrder(agent, types.TradeDecision{
		Action: types.ActionClose, Asset: "BTC", Confidence: 0.9,
	}, acct)
	require.NoError(t, err)
	assert.True(t, req.ReduceOnly)
	assert.Equal(t, exchange.SideSell, req.Side)
	assert.Nil(t, lev)
	assert.True(t, req.SizeUSD.Equal(decimal.NewFromInt(5000)))
}

func TestBuildOrderCloseWithoutPosition(t *testing.T) {
	agent := &types.Agent{ID: "a1", MaxLeverage: 10}
	acct := &exchange.AccountState{Equity: decimal.NewFromInt(10000)}

	_, _, err := BuildOrder(agent, types.TradeDecision{
		Action: types.ActionClose, Asset: "BTC", Confidence: 0.9,
	}, acct)
	require.Error(t, err)
	assert.False(t, exchange.IsTransient(err))
	assert.Equal(t, exchange.CodeOrderRejected, exchange.ErrCode(err))
}
