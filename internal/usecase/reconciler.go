package usecase

import "github.com/vitos/crypto_grid_bot/internal/domain"

// Reconciler converts a level movement between two poll cycles into an
// ordered list of per-line trade intents. It is pure planning: it reads the
// ledger but never mutates it, and the running balance counters are
// decremented in-memory per queued intent so a single cycle crossing several
// lines cannot over-spend a balance that was only fetched once.
type Reconciler struct {
	geo           domain.Geometry
	levelsDown    int
	levelsUp      int
	orderNotional float64
	closeOffset   int
}

// NewReconciler configures the planner. closeOffset is the grid-sell pairing
// policy: a sell fired on line L drains the slot at L-closeOffset. The
// classical convention is 1 (a rise through a line liquidates the buy opened
// one line below it).
func NewReconciler(geo domain.Geometry, levelsDown, levelsUp int, orderNotional float64, closeOffset int) *Reconciler {
	return &Reconciler{
		geo:           geo,
		levelsDown:    levelsDown,
		levelsUp:      levelsUp,
		orderNotional: orderNotional,
		closeOffset:   closeOffset,
	}
}

// Plan enumerates every grid line crossed between prevLevel and newLevel and
// emits one intent per tradable line, nearest-to-farthest from prevLevel.
// Callers handle the warmup baseline, the out-of-range hold, the no-move
// case and the gate before planning; Plan only applies the grid bounds and
// the balance/ledger constraints.
func (r *Reconciler) Plan(prevLevel, newLevel int, quoteAvail, baseAvail float64, ledger *GridLedger) []domain.TradeIntent {
	switch {
	case newLevel < prevLevel:
		return r.planBuys(prevLevel, newLevel, quoteAvail)
	case newLevel > prevLevel:
		return r.planSells(prevLevel, newLevel, baseAvail, ledger)
	}
	return nil
}

// planBuys walks the crossed lines downward: prevLevel-1, prevLevel-2, ...,
// newLevel. The line closest to where the price started moving is opened
// first. Stops at the grid floor or when the reserved quote balance runs out.
func (r *Reconciler) planBuys(prevLevel, newLevel int, quoteAvail float64) []domain.TradeIntent {
	var intents []domain.TradeIntent
	for level := prevLevel - 1; level >= newLevel; level-- {
		if level < -r.levelsDown {
			break
		}
		if quoteAvail < r.orderNotional {
			break
		}

		price := r.geo.PriceOf(level)
		intents = append(intents, domain.TradeIntent{
			Side:        domain.SideBuy,
			Level:       level,
			Price:       price,
			QuoteAmount: r.orderNotional,
			Qty:         r.orderNotional / price,
		})
		quoteAvail -= r.orderNotional
	}
	return intents
}

// planSells walks the crossed lines upward: prevLevel+1, ..., newLevel.
// Each sell line drains the slot closeOffset levels below it; a line with
// nothing open there is skipped silently without consuming balance. Stops at
// the grid ceiling, when no slots remain, or when base balance is exhausted.
func (r *Reconciler) planSells(prevLevel, newLevel int, baseAvail float64, ledger *GridLedger) []domain.TradeIntent {
	var intents []domain.TradeIntent
	openCount := ledger.OpenCount()

	for sellLevel := prevLevel + 1; sellLevel <= newLevel; sellLevel++ {
		if sellLevel > r.levelsUp {
			break
		}
		if openCount <= 0 || baseAvail <= 0 {
			break
		}

		closeLevel := sellLevel - r.closeOffset
		price := r.geo.PriceOf(sellLevel)

		target := r.orderNotional / price
		if baseAvail < target {
			target = baseAvail
		}

		available := ledger.Available(closeLevel)
		if available <= 0 {
			continue
		}
		qty := available
		if target < qty {
			qty = target
		}
		if qty <= 0 {
			continue
		}

		intents = append(intents, domain.TradeIntent{
			Side:       domain.SideSell,
			Level:      sellLevel,
			CloseLevel: closeLevel,
			Price:      price,
			Qty:        qty,
		})
		baseAvail -= qty
		if qty >= available {
			openCount--
		}
	}
	return intents
}
