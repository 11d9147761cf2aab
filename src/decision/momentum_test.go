package decision

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-markets/agentfleet/src/exchange"
	"github.com/helix-markets/agentfleet/src/types"
)

func market(asset string, change float64) exchange.MarketState {
	return exchange.MarketState{
		Asset:     asset,
		MarkPrice: decimal.NewFromInt(50000),
		Change24h: change,
	}
}

func momAgent(risk string) *types.Agent {
	return &types.Agent{ID: "a1", RiskLevel: risk, MaxLeverage: 10}
}

func TestMomentumHoldsOnFlatTape(t *testing.T) {
	m := NewMomentum()
	d, err := m.Decide(context.Background(), momAgent("balanced"), &exchange.AccountState{},
		[]exchange.MarketState{market("BTC", 0.002)})
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action)
}

func TestMomentumHoldsWithoutMarketData(t *testing.T) {
	m := NewMomentum()
	d, err := m.Decide(context.Background(), momAgent("balanced"), &exchange.AccountState{}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action)
}

func TestMomentumFollowsStrongestMove(t *testing.T) {
	m := NewMomentum()
	d, err := m.Decide(context.Background(), momAgent("balanced"), &exchange.AccountState{},
		[]exchange.MarketState{market("BTC", 0.02), market("ETH", -0.06)})
	require.NoError(t, err)
	assert.Equal(t, types.ActionShort, d.Action)
	assert.Equal(t, "ETH", d.Asset)
	assert.Equal(t, 0.1, d.Size)
	assert.Equal(t, 3, d.Leverage)
	assert.Greater(t, d.Confidence, 0.5)
}

func TestMomentumLongOnUpMove(t *testing.T) {
	m := NewMomentum()
	d, err := m.Decide(context.Background(), momAgent("aggressive"), &exchange.AccountState{},
		[]exchange.MarketState{market("BTC", 0.05)})
	require.NoError(t, err)
	assert.Equal(t, types.ActionLong, d.Action)
	assert.Equal(t, 0.25, d.Size)
	assert.Equal(t, 5, d.Leverage)
}

func TestMomentumConfidenceSaturates(t *testing.T) {
	m := NewMomentum()
	d, err := m.Decide(context.Background(), momAgent("balanced"), &exchange.AccountState{},
		[]exchange.MarketState{market("BTC", 0.20)})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)
}

func TestMomentumClosesOnReversal(t *testing.T) {
	m := NewMomentum()
	acct := &exchange.AccountState{
		Positions: []exchange.Position{{
			Asset: "BTC",
			Side:  exchange.SideBuy,
			Size:  decimal.NewFromFloat(0.1),
		}},
	}
	d, err := m.Decide(context.Background(), momAgent("balanced"), acct,
		[]exchange.MarketState{market("BTC", -0.04)})
	require.NoError(t, err)
	assert.Equal(t, types.ActionClose, d.Action)
	assert.Equal(t, "BTC", d.Asset)
}

func TestMomentumHoldsWhenPositionAligned(t *testing.T) {
	m := NewMomentum()
	acct := &exchange.AccountState{
		Positions: []exchange.Position{{
			Asset: "BTC",
			Side:  exchange.SideBuy,
			Size:  decimal.NewFromFloat(0.1),
		}},
	}
	d, err := m.Decide(context.Background(), momAgent("balanced"), acct,
		[]exchange.MarketState{market("BTC", 0.04)})
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action)
}

func TestMomentumLeverageCappedByAgent(t *testing.T) {
	agent := momAgent("aggressive")
	agent.MaxLeverage = 2
	m := NewMomentum()
	d, err := m.Decide(context.Background(), agent, &exchange.AccountState{},
		[]exchange.MarketState{market("BTC", 0.05)})
	require.NoError(t, err)
	assert.Equal(t, 2, d.Leverage)
}
