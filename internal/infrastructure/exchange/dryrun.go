package exchange

import (
	"context"
	"log"
	"sync"

	"github.com/vitos/crypto_grid_bot/internal/domain"
)

// DryRunExchange wraps a live adapter but never sends orders. Market data
// passes through; orders fill synthetically at their limit price and move
// paper balances so a multi-cycle simulation stays self-consistent.
type DryRunExchange struct {
	live       domain.Exchange
	baseAsset  string
	quoteAsset string

	mu    sync.Mutex
	base  float64
	quote float64
}

func NewDryRunExchange(live domain.Exchange, baseAsset, quoteAsset string, startBase, startQuote float64) *DryRunExchange {
	return &DryRunExchange{
		live:       live,
		baseAsset:  baseAsset,
		quoteAsset: quoteAsset,
		base:       startBase,
		quote:      startQuote,
	}
}

func (d *DryRunExchange) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]domain.PublicTrade, error) {
	return d.live.GetRecentTrades(ctx, symbol, limit)
}

func (d *DryRunExchange) GetAvailable(ctx context.Context, asset string) domain.BalanceResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch asset {
	case d.baseAsset:
		return domain.BalanceResult{Value: d.base, Source: "paper", OK: true}
	case d.quoteAsset:
		return domain.BalanceResult{Value: d.quote, Source: "paper", OK: true}
	}
	return domain.BalanceResult{}
}

func (d *DryRunExchange) PlaceBuy(ctx context.Context, symbol string, quoteAmount, limitPrice float64) (domain.OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if quoteAmount > d.quote {
		quoteAmount = d.quote
	}
	if quoteAmount <= 0 || limitPrice <= 0 {
		return domain.OrderResult{}, nil
	}

	qty := quoteAmount / limitPrice
	d.quote -= quoteAmount
	d.base += qty

	log.Printf("[dry-run] BUY %s qty=%.8f price=%.4f quote_left=%.2f", symbol, qty, limitPrice, d.quote)
	return domain.OrderResult{Filled: true, FilledQty: qty, FilledPrice: limitPrice}, nil
}

func (d *DryRunExchange) PlaceSell(ctx context.Context, symbol string, baseQty, limitPrice float64) (domain.OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if baseQty > d.base {
		baseQty = d.base
	}
	if baseQty <= 0 || limitPrice <= 0 {
		return domain.OrderResult{}, nil
	}

	d.base -= baseQty
	d.quote += baseQty * limitPrice

	log.Printf("[dry-run] SELL %s qty=%.8f price=%.4f base_left=%.8f", symbol, baseQty, limitPrice, d.base)
	return domain.OrderResult{Filled: true, FilledQty: baseQty, FilledPrice: limitPrice}, nil
}
