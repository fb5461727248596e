package domain

import "context"

// OrderResult reports what a poll cycle sees as filled for one order.
// Partial fills below this granularity are not tracked.
type OrderResult struct {
	Filled      bool
	FilledQty   float64
	FilledPrice float64
}

// BalanceResult carries an available-balance reading together with the
// endpoint that produced it. OK is false when every source failed; callers
// must then treat the balance as zero rather than guess.
type BalanceResult struct {
	Value  float64
	Source string
	OK     bool
}

// Exchange defines the trading API boundary the engine consumes.
// Implementations retry transient failures internally; a returned error
// means retries are exhausted and the cycle should be abandoned.
type Exchange interface {
	GetRecentTrades(ctx context.Context, symbol string, limit int) ([]PublicTrade, error)
	GetAvailable(ctx context.Context, asset string) BalanceResult
	PlaceBuy(ctx context.Context, symbol string, quoteAmount, limitPrice float64) (OrderResult, error)
	PlaceSell(ctx context.Context, symbol string, baseQty, limitPrice float64) (OrderResult, error)
}

// SnapshotRepository persists engine state across restarts. Save must be
// atomic from the engine's point of view; Load returns (nil, nil) on first
// run.
type SnapshotRepository interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}
