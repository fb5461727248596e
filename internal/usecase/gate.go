package usecase

import (
	"math"
	"time"
)

// Decision is the outcome of a single named guard. Anything other than
// Proceed vetoes trading for the whole poll cycle.
type Decision int

const (
	Proceed Decision = iota
	SkipCooldown
	SkipHysteresis
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case SkipCooldown:
		return "cooldown"
	case SkipHysteresis:
		return "hysteresis"
	}
	return "unknown"
}

// Gate suppresses over-trading at grid boundaries. It combines a cooldown
// timer and a hysteresis filter against the last trade price; both are keyed
// off the last successful trade in either direction and evaluated once per
// poll cycle. Once a cycle passes the gate, every crossed line within it may
// trade (further limited only by balance).
type Gate struct {
	cooldown   time.Duration
	minMovePct float64

	lastTradeTime  time.Time
	lastTradePrice float64

	now func() time.Time
}

// NewGate builds a gate from the cooldown length and the minimum price move
// (percent) required since the last trade. minMovePct should be at least the
// grid step percentage, otherwise oscillation across one boundary bleeds
// fees.
func NewGate(cooldown time.Duration, minMovePct float64) *Gate {
	return &Gate{
		cooldown:   cooldown,
		minMovePct: minMovePct,
		now:        time.Now,
	}
}

// Check evaluates both guards against the cycle's reference price.
func (g *Gate) Check(price float64) Decision {
	if !g.lastTradeTime.IsZero() && g.now().Sub(g.lastTradeTime) < g.cooldown {
		return SkipCooldown
	}
	if g.lastTradePrice > 0 {
		movePct := math.Abs(price-g.lastTradePrice) / g.lastTradePrice * 100.0
		if movePct < g.minMovePct {
			return SkipHysteresis
		}
	}
	return Proceed
}

// CooldownLeft reports how much of the cooldown window remains, for logging.
func (g *Gate) CooldownLeft() time.Duration {
	if g.lastTradeTime.IsZero() {
		return 0
	}
	left := g.cooldown - g.now().Sub(g.lastTradeTime)
	if left < 0 {
		return 0
	}
	return left
}

// RecordTrade arms both guards after a cycle that confirmed at least one
// trade, using the cycle's reference price.
func (g *Gate) RecordTrade(price float64) {
	g.lastTradeTime = g.now()
	g.lastTradePrice = price
}
