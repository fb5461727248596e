package domain

import "fmt"

// Geometry maps prices to grid level indices around a fixed center price.
// Level 0 is the center line, positive levels are above it, negative below.
// Step is derived once at construction and is immutable for the process
// lifetime; a snapshot written with a different step must not be reused.
type Geometry struct {
	Center float64
	Step   float64
}

// NewGeometry derives the grid step from the center price and the step
// percentage (e.g. 0.7 means 0.7% of center per level).
func NewGeometry(centerPrice, stepPct float64) (Geometry, error) {
	step := centerPrice * stepPct / 100.0
	if step <= 0 {
		return Geometry{}, fmt.Errorf("invalid grid step %f (center=%f step_pct=%f)", step, centerPrice, stepPct)
	}
	return Geometry{Center: centerPrice, Step: step}, nil
}

// LevelOf returns the fractional level index of a price. Callers floor it
// to get the current grid cell.
func (g Geometry) LevelOf(price float64) float64 {
	return (price - g.Center) / g.Step
}

// PriceOf returns the exact price of the grid line at the given level.
func (g Geometry) PriceOf(level int) float64 {
	return g.Center + g.Step*float64(level)
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeIntent is one per-line trade decision produced by the reconciler.
// For buys, QuoteAmount is the notional to spend at Price on line Level.
// For sells, Qty is the exact base quantity to liquidate at Price on line
// Level, draining the slot at CloseLevel.
type TradeIntent struct {
	Side        Side
	Level       int
	CloseLevel  int
	Price       float64
	QuoteAmount float64
	Qty         float64
}
