package usecase

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/crypto_grid_bot/internal/domain"
)

func TestAccountant_BuyIncludesFee(t *testing.T) {
	a := NewAccountant(0.0025)

	a.OnFillBuy(2.0, 100.0)

	pos := a.Position()
	assert.Equal(t, 2.0, pos.Qty)
	assert.InDelta(t, 200.0*1.0025, pos.CostBasis, 1e-9)
	assert.InDelta(t, 100.25, a.AvgCost(), 1e-9)
}

func TestAccountant_RoundTripAtSamePrice(t *testing.T) {
	// Buying and selling the same quantity at the same price must realize
	// exactly the round-trip fees as a loss.
	const (
		qty   = 3.0
		price = 50.0
		fee   = 0.0025
	)
	a := NewAccountant(fee)

	a.OnFillBuy(qty, price)
	a.OnFillSell(qty, price)

	pos := a.Position()
	assert.Equal(t, 0.0, pos.Qty)
	assert.Equal(t, 0.0, pos.CostBasis)
	assert.InDelta(t, -2*qty*price*fee, pos.RealizedPnL, 1e-9)
}

func TestAccountant_PartialSellReleasesProportionalCost(t *testing.T) {
	a := NewAccountant(0)

	a.OnFillBuy(2.0, 100.0)
	a.OnFillSell(1.0, 110.0)

	pos := a.Position()
	assert.InDelta(t, 1.0, pos.Qty, 1e-9)
	assert.InDelta(t, 100.0, pos.CostBasis, 1e-9)
	assert.InDelta(t, 10.0, pos.RealizedPnL, 1e-9)
}

func TestAccountant_ZeroClamp(t *testing.T) {
	a := NewAccountant(0.001)

	// Many small round trips: drift must never leave a phantom position.
	for i := 0; i < 1000; i++ {
		a.OnFillBuy(0.333333, 30.0)
		a.OnFillSell(0.333333, 30.1)
	}

	pos := a.Position()
	assert.Equal(t, 0.0, pos.Qty)
	assert.Equal(t, 0.0, pos.CostBasis)
	assert.False(t, math.IsNaN(pos.RealizedPnL))
}

func TestAccountant_SellIgnoredWhenFlat(t *testing.T) {
	a := NewAccountant(0)
	a.OnFillSell(1.0, 100.0)

	assert.Equal(t, domain.Position{}, a.Position())
}

func TestAccountant_UnrealizedPnL(t *testing.T) {
	a := NewAccountant(0)
	a.OnFillBuy(2.0, 100.0)

	assert.InDelta(t, 20.0, a.UnrealizedPnL(110.0), 1e-9)
	assert.InDelta(t, -20.0, a.UnrealizedPnL(90.0), 1e-9)
}
