package usecase

import "github.com/vitos/crypto_grid_bot/internal/domain"

// VWAPTail computes the volume-weighted average price over the last `tail`
// entries of an oldest-first trade batch. Entries with non-positive price or
// amount are ignored; if every entry is filtered out the last trade price is
// used instead. Returns ok=false when no price can be derived at all.
func VWAPTail(trades []domain.PublicTrade, tail int) (float64, bool) {
	if len(trades) == 0 {
		return 0, false
	}

	start := len(trades) - tail
	if tail <= 0 || start < 0 {
		start = 0
	}
	window := trades[start:]

	var notional, qty float64
	for _, t := range window {
		if t.Price <= 0 || t.Amount <= 0 {
			continue
		}
		notional += t.Price * t.Amount
		qty += t.Amount
	}

	if qty > 0 {
		return notional / qty, true
	}

	last := window[len(window)-1]
	if last.Price > 0 {
		return last.Price, true
	}
	return 0, false
}
