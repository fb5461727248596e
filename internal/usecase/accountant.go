package usecase

import "github.com/vitos/crypto_grid_bot/internal/domain"

// qtyEpsilon: a position whose quantity falls at or below this after a sell
// is clamped to exactly zero, together with its cost basis, so rounding
// drift cannot accumulate across many round trips.
const qtyEpsilon = 1e-9

// Accountant maintains the weighted-average-cost position and realized PnL,
// fed only by confirmed fills.
type Accountant struct {
	pos     domain.Position
	feeRate float64
}

func NewAccountant(feeRate float64) *Accountant {
	return &Accountant{feeRate: feeRate}
}

// Restore replaces the position from a persisted snapshot.
func (a *Accountant) Restore(pos domain.Position) {
	a.pos = pos
}

// OnFillBuy books a confirmed buy: cost basis grows by gross plus fee.
func (a *Accountant) OnFillBuy(qty, price float64) {
	if qty <= 0 || price <= 0 {
		return
	}
	gross := qty * price
	cost := gross + gross*a.feeRate

	a.pos.Qty += qty
	a.pos.CostBasis += cost
}

// OnFillSell books a confirmed sell: a proportional share of the cost basis
// is released against the fee-net proceeds, the difference realized as PnL.
func (a *Accountant) OnFillSell(qty, price float64) {
	if qty <= 0 || price <= 0 || a.pos.Qty <= 0 {
		return
	}

	portion := qty / a.pos.Qty
	if portion > 1 {
		portion = 1
	}
	costPart := a.pos.CostBasis * portion

	gross := qty * price
	proceeds := gross - gross*a.feeRate

	a.pos.RealizedPnL += proceeds - costPart
	a.pos.Qty -= qty
	a.pos.CostBasis -= costPart

	if a.pos.Qty <= qtyEpsilon {
		a.pos.Qty = 0
		a.pos.CostBasis = 0
	}
}

// Position returns a copy of the current position record.
func (a *Accountant) Position() domain.Position {
	return a.pos
}

// AvgCost is the cost basis per open unit, 0 when flat.
func (a *Accountant) AvgCost() float64 {
	return a.pos.AvgCost()
}

// UnrealizedPnL values the open quantity at the given price.
func (a *Accountant) UnrealizedPnL(price float64) float64 {
	return a.pos.UnrealizedPnL(price)
}
