package usecase

// slotEpsilon is the residual quantity below which a slot is considered
// drained and removed, so floating-point dust cannot keep slots alive.
const slotEpsilon = 1e-12

// GridLedger tracks how much base-asset quantity is open at each grid level.
// A slot exists only while its quantity is positive; the number of slots is
// the "open grid buys" count shown to the operator and used as the sell-side
// eligibility gate. The ledger itself is pure in-memory state; the engine
// persists it after every confirmed fill.
type GridLedger struct {
	slots map[int]float64
}

func NewGridLedger() *GridLedger {
	return &GridLedger{slots: make(map[int]float64)}
}

// Restore replaces the ledger contents from a persisted snapshot,
// dropping non-positive entries.
func (l *GridLedger) Restore(slots map[int]float64) {
	l.slots = make(map[int]float64, len(slots))
	for level, qty := range slots {
		if qty > 0 {
			l.slots[level] = qty
		}
	}
}

// Open adds qty to the slot at level, creating it if absent.
// Non-positive quantities are a no-op, not an error.
func (l *GridLedger) Open(level int, qty float64) {
	if qty <= 0 {
		return
	}
	l.slots[level] += qty
}

// Close drains up to maxQty from the slot at level and returns the quantity
// actually removed, 0 if the slot does not exist. Callers must size all
// downstream accounting from the returned value, not from maxQty: the slot
// can hold less than a full grid unit after prior partial closes.
func (l *GridLedger) Close(level int, maxQty float64) float64 {
	if maxQty <= 0 {
		return 0
	}
	available, ok := l.slots[level]
	if !ok || available <= 0 {
		return 0
	}

	qty := maxQty
	if available < qty {
		qty = available
	}

	remaining := available - qty
	if remaining <= slotEpsilon {
		delete(l.slots, level)
	} else {
		l.slots[level] = remaining
	}
	return qty
}

// Available reports the open quantity at a level without mutating the slot.
// The reconciler uses it to size sell orders before placement; the slot is
// only drained once the order is confirmed.
func (l *GridLedger) Available(level int) float64 {
	return l.slots[level]
}

// OpenCount is the number of non-empty slots.
func (l *GridLedger) OpenCount() int {
	return len(l.slots)
}

// TotalQty is the sum of all slot quantities. It must match the position
// quantity whenever all inventory was acquired through the grid.
func (l *GridLedger) TotalQty() float64 {
	var total float64
	for _, qty := range l.slots {
		total += qty
	}
	return total
}

// Slots returns a copy of the slot map for persistence and status views.
func (l *GridLedger) Slots() map[int]float64 {
	out := make(map[int]float64, len(l.slots))
	for level, qty := range l.slots {
		out[level] = qty
	}
	return out
}
