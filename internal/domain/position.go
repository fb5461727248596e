package domain

// Position is the aggregate weighted-average-cost record of all inventory
// opened by the grid. CostBasis is the fee-inclusive quote-currency cost of
// Qty. Invariants: Qty >= 0, CostBasis >= 0, and CostBasis == 0 whenever
// Qty == 0.
type Position struct {
	Qty         float64 `json:"qty"`
	CostBasis   float64 `json:"cost_basis"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// AvgCost is the cost basis per unit, 0 when flat.
func (p Position) AvgCost() float64 {
	if p.Qty <= 0 {
		return 0
	}
	return p.CostBasis / p.Qty
}

// UnrealizedPnL values the open quantity at the given price against its
// average cost.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.Qty <= 0 {
		return 0
	}
	return (price - p.AvgCost()) * p.Qty
}

// Snapshot is the durable state of the engine: the position, the per-level
// open quantities, and the grid step they were written under.
type Snapshot struct {
	Position Position        `json:"position"`
	Slots    map[int]float64 `json:"grid_slots"`
	GridStep float64         `json:"grid_step"`
}

// PublicTrade is one normalized entry of a recent-trades batch. Adapters
// return batches ordered oldest first.
type PublicTrade struct {
	Time   int64   `json:"ts"`
	Price  float64 `json:"rate"`
	Amount float64 `json:"amount"`
}
