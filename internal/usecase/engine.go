package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/vitos/crypto_grid_bot/internal/domain"
	"go.uber.org/zap"
)

var (
	// ErrStepMismatch: the persisted snapshot was written under a different
	// grid step. All ledger entries would map to wrong prices; refusing to
	// start is the only safe option.
	ErrStepMismatch = errors.New("snapshot grid step does not match configured step")

	// ErrLedgerMismatch: total ledger quantity diverged from the position
	// quantity. The engine must stop rather than keep trading on corrupted
	// state.
	ErrLedgerMismatch = errors.New("ledger quantity inconsistent with position quantity")
)

// ledgerTolerance bounds the acceptable float drift between the ledger total
// and the position quantity before it is treated as corruption.
const ledgerTolerance = 1e-6

// MetricsRecorder receives engine events for the operator-facing metrics
// surface. A nil recorder disables it.
type MetricsRecorder interface {
	OrderPlaced(side string)
	CycleResult(result string)
	SetRealizedPnL(v float64)
	SetOpenSlots(n int)
	SetLastPrice(price float64)
}

// EngineConfig carries the per-symbol grid parameters.
type EngineConfig struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	TradesFetch int
	VWAPTail    int
	PriceRound  int
	QtyRound    int
	DryRun      bool
}

// GridEngine owns the grid ledger, the position accountant and the
// per-cycle crossing state for one symbol. It is driven by a single
// sequential poll loop; the mutex only protects the status surface read by
// the web server.
type GridEngine struct {
	cfg      EngineConfig
	geo      domain.Geometry
	ledger   *GridLedger
	acct     *Accountant
	gate     *Gate
	rec      *Reconciler
	exchange domain.Exchange
	repo     domain.SnapshotRepository
	logger   *zap.Logger
	metrics  MetricsRecorder

	mu        sync.RWMutex
	lastLevel *int
	lastPrice float64
}

func NewGridEngine(
	cfg EngineConfig,
	geo domain.Geometry,
	gate *Gate,
	rec *Reconciler,
	exchange domain.Exchange,
	repo domain.SnapshotRepository,
	acct *Accountant,
	logger *zap.Logger,
	metrics MetricsRecorder,
) *GridEngine {
	return &GridEngine{
		cfg:      cfg,
		geo:      geo,
		ledger:   NewGridLedger(),
		acct:     acct,
		gate:     gate,
		rec:      rec,
		exchange: exchange,
		repo:     repo,
		logger:   logger,
		metrics:  metrics,
	}
}

// Restore loads the persisted snapshot, if any, and rebuilds the ledger and
// position. A snapshot written under a different grid step is a fatal
// misconfiguration.
func (e *GridEngine) Restore(ctx context.Context) error {
	snap, err := e.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil {
		e.logger.Info("no snapshot found, starting fresh")
		return nil
	}

	if snap.GridStep > 0 && math.Abs(snap.GridStep-e.geo.Step) > 1e-12 {
		return fmt.Errorf("%w: snapshot=%f configured=%f", ErrStepMismatch, snap.GridStep, e.geo.Step)
	}

	e.ledger.Restore(snap.Slots)
	e.acct.Restore(snap.Position)

	e.logger.Info("restored snapshot",
		zap.Float64("qty", snap.Position.Qty),
		zap.Float64("cost_basis", snap.Position.CostBasis),
		zap.Float64("realized_pnl", snap.Position.RealizedPnL),
		zap.Int("open_slots", e.ledger.OpenCount()))

	if err := e.checkInvariants(); err != nil {
		return err
	}
	e.publishGauges()
	return nil
}

// Run polls until the context is cancelled. Cycle errors are logged and the
// loop continues, except invariant violations, which stop the engine.
func (e *GridEngine) Run(ctx context.Context, interval time.Duration) error {
	e.logStartup()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := e.RunCycle(ctx); err != nil {
			if errors.Is(err, ErrLedgerMismatch) || errors.Is(err, ErrStepMismatch) {
				e.logger.Error("invariant violation, stopping engine", zap.Error(err))
				return err
			}
			e.logger.Error("cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (e *GridEngine) logStartup() {
	estProfit := e.geo.Step / e.geo.Center * 100.0
	feePct := 2 * e.acct.feeRate * 100.0
	e.logger.Info("grid engine starting",
		zap.String("symbol", e.cfg.Symbol),
		zap.Float64("center", e.geo.Center),
		zap.Float64("step", e.geo.Step),
		zap.Int("levels_down", e.rec.levelsDown),
		zap.Int("levels_up", e.rec.levelsUp),
		zap.Float64("order_notional", e.rec.orderNotional),
		zap.Bool("dry_run", e.cfg.DryRun))
	if estProfit <= feePct {
		e.logger.Warn("grid step does not cover round-trip fees",
			zap.Float64("step_pct", estProfit),
			zap.Float64("round_trip_fee_pct", feePct))
	}
	if e.gate.minMovePct < estProfit {
		e.logger.Warn("hysteresis below one grid step, sub-step oscillations can trade",
			zap.Float64("min_move_pct", e.gate.minMovePct),
			zap.Float64("step_pct", estProfit))
	}
}

// RunCycle performs one poll iteration: derive the reference price, detect
// crossed grid lines and execute the resulting intents. State is mutated
// only after confirmed fills and persisted synchronously after each one.
func (e *GridEngine) RunCycle(ctx context.Context) error {
	trades, err := e.exchange.GetRecentTrades(ctx, e.cfg.Symbol, e.cfg.TradesFetch)
	if err != nil {
		e.recordCycle("error")
		return fmt.Errorf("fetch trades: %w", err)
	}
	if len(trades) == 0 {
		e.logger.Warn("no trades returned, skipping cycle", zap.String("symbol", e.cfg.Symbol))
		e.recordCycle("no_data")
		return nil
	}

	px, ok := VWAPTail(trades, e.cfg.VWAPTail)
	if !ok {
		e.logger.Warn("no reference price derivable, skipping cycle")
		e.recordCycle("no_data")
		return nil
	}
	e.setLastPrice(px)

	lvl := int(math.Floor(e.geo.LevelOf(px)))
	e.logger.Debug("price observed",
		zap.Float64("px", px),
		zap.Int("level", lvl),
		zap.Int("open_slots", e.ledger.OpenCount()))

	prev, havePrev := e.lastObservedLevel()
	// Baseline is always advanced, trade or not.
	defer e.setLastLevel(lvl)

	if !havePrev {
		e.logger.Info("warmup: grid baseline initialized",
			zap.Int("level", lvl), zap.Float64("px", px))
		e.recordCycle("warmup")
		return nil
	}

	// Current cell entirely outside the configured bounds: hold.
	if lvl < -e.rec.levelsDown || lvl+1 > e.rec.levelsUp {
		e.logger.Info("hold: out of grid range",
			zap.Int("level", lvl), zap.Float64("px", px))
		e.recordCycle("out_of_range")
		return nil
	}

	if lvl == prev {
		e.logger.Debug("hold: no level change", zap.Int("level", lvl))
		e.recordCycle("no_move")
		return nil
	}

	if d := e.gate.Check(px); d != Proceed {
		e.logger.Info("gate veto",
			zap.String("reason", d.String()),
			zap.Int("prev_level", prev),
			zap.Int("level", lvl),
			zap.Duration("cooldown_left", e.gate.CooldownLeft()))
		e.recordCycle(d.String())
		return nil
	}

	quoteAvail, baseAvail := e.fetchBalances(ctx, lvl < prev)
	intents := e.rec.Plan(prev, lvl, quoteAvail, baseAvail, e.ledger)
	if len(intents) == 0 {
		e.logger.Info("no tradable lines this cycle",
			zap.Int("prev_level", prev), zap.Int("level", lvl))
		e.recordCycle("insufficient_balance")
		return nil
	}

	traded := 0
	for _, intent := range intents {
		confirmed, err := e.execute(ctx, intent, px)
		if err != nil {
			return err
		}
		if confirmed {
			traded++
		}
	}

	if traded > 0 {
		e.gate.RecordTrade(px)
		e.logPosition(px)
		e.recordCycle("traded")
	} else {
		e.recordCycle("no_fill")
	}
	return nil
}

// fetchBalances reads only the side the cycle needs. A failed read counts as
// zero available: the engine refuses to trade rather than risk over-spending.
func (e *GridEngine) fetchBalances(ctx context.Context, buying bool) (quote, base float64) {
	if buying {
		res := e.exchange.GetAvailable(ctx, e.cfg.QuoteAsset)
		if !res.OK {
			e.logger.Warn("quote balance unavailable, treating as zero",
				zap.String("asset", e.cfg.QuoteAsset))
			return 0, 0
		}
		e.logger.Debug("balance", zap.String("asset", e.cfg.QuoteAsset),
			zap.Float64("available", res.Value), zap.String("source", res.Source))
		return res.Value, 0
	}

	res := e.exchange.GetAvailable(ctx, e.cfg.BaseAsset)
	if !res.OK {
		e.logger.Warn("base balance unavailable, treating as zero",
			zap.String("asset", e.cfg.BaseAsset))
		return 0, 0
	}
	e.logger.Debug("balance", zap.String("asset", e.cfg.BaseAsset),
		zap.Float64("available", res.Value), zap.String("source", res.Source))
	return 0, res.Value
}

// execute places one intent and, only on confirmation, mutates ledger and
// position and persists the snapshot. An unfilled or failed order leaves
// state exactly as before and is not retried within the cycle.
func (e *GridEngine) execute(ctx context.Context, intent domain.TradeIntent, px float64) (bool, error) {
	switch intent.Side {
	case domain.SideBuy:
		limit := roundTo(intent.Price, e.cfg.PriceRound)
		res, err := e.exchange.PlaceBuy(ctx, e.cfg.Symbol, intent.QuoteAmount, limit)
		if err != nil || !res.Filled {
			e.logger.Warn("buy not filled",
				zap.Int("level", intent.Level),
				zap.Float64("limit", limit),
				zap.Error(err))
			return false, nil
		}

		e.mu.Lock()
		e.ledger.Open(intent.Level, res.FilledQty)
		e.acct.OnFillBuy(res.FilledQty, res.FilledPrice)
		e.mu.Unlock()
		if err := e.afterFill(ctx); err != nil {
			return false, err
		}

		if e.metrics != nil {
			e.metrics.OrderPlaced("buy")
		}
		e.logger.Info("buy filled",
			zap.Int("level", intent.Level),
			zap.Float64("px", px),
			zap.Float64("limit", limit),
			zap.Float64("qty", res.FilledQty),
			zap.Int("open_slots", e.ledger.OpenCount()))
		return true, nil

	case domain.SideSell:
		limit := roundTo(intent.Price, e.cfg.PriceRound)
		qty := roundTo(intent.Qty, e.cfg.QtyRound)
		if qty <= 0 {
			return false, nil
		}
		res, err := e.exchange.PlaceSell(ctx, e.cfg.Symbol, qty, limit)
		if err != nil || !res.Filled {
			e.logger.Warn("sell not filled",
				zap.Int("level", intent.Level),
				zap.Int("close_level", intent.CloseLevel),
				zap.Float64("limit", limit),
				zap.Error(err))
			return false, nil
		}

		// The slot drains the planned quantity; only the wire amount is
		// rounded. Draining by the rounded quantity would leave sub-rounding
		// residue that no later crossing can ever close.
		e.mu.Lock()
		actual := e.ledger.Close(intent.CloseLevel, intent.Qty)
		e.acct.OnFillSell(actual, res.FilledPrice)
		e.mu.Unlock()
		if err := e.afterFill(ctx); err != nil {
			return false, err
		}

		if e.metrics != nil {
			e.metrics.OrderPlaced("sell")
		}
		e.logger.Info("sell filled",
			zap.Int("level", intent.Level),
			zap.Int("close_level", intent.CloseLevel),
			zap.Float64("px", px),
			zap.Float64("limit", limit),
			zap.Float64("qty", actual),
			zap.Int("open_slots", e.ledger.OpenCount()))
		return true, nil
	}
	return false, nil
}

// afterFill persists the mutated state and re-checks the ledger/position
// invariant. Persistence is synchronous: the snapshot must land before the
// next line or cycle proceeds.
func (e *GridEngine) afterFill(ctx context.Context) error {
	if err := e.persist(ctx); err != nil {
		return err
	}
	if err := e.checkInvariants(); err != nil {
		return err
	}
	e.publishGauges()
	return nil
}

func (e *GridEngine) persist(ctx context.Context) error {
	snap := &domain.Snapshot{
		Position: e.acct.Position(),
		Slots:    e.ledger.Slots(),
		GridStep: e.geo.Step,
	}
	if err := e.repo.Save(ctx, snap); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

func (e *GridEngine) checkInvariants() error {
	pos := e.acct.Position()
	if diff := math.Abs(e.ledger.TotalQty() - pos.Qty); diff > ledgerTolerance {
		return fmt.Errorf("%w: ledger=%f position=%f", ErrLedgerMismatch, e.ledger.TotalQty(), pos.Qty)
	}
	return nil
}

func (e *GridEngine) logPosition(px float64) {
	pos := e.acct.Position()
	if pos.Qty <= 0 {
		e.logger.Info("position flat",
			zap.Float64("realized_pnl", pos.RealizedPnL),
			zap.Int("open_slots", e.ledger.OpenCount()))
		return
	}
	e.logger.Info("position",
		zap.Float64("qty", pos.Qty),
		zap.Float64("avg_cost", pos.AvgCost()),
		zap.Float64("cost_basis", pos.CostBasis),
		zap.Float64("unrealized_pnl", pos.UnrealizedPnL(px)),
		zap.Float64("realized_pnl", pos.RealizedPnL),
		zap.Int("open_slots", e.ledger.OpenCount()))
}

func (e *GridEngine) publishGauges() {
	if e.metrics == nil {
		return
	}
	pos := e.acct.Position()
	e.metrics.SetRealizedPnL(pos.RealizedPnL)
	e.metrics.SetOpenSlots(e.ledger.OpenCount())
}

func (e *GridEngine) recordCycle(result string) {
	if e.metrics != nil {
		e.metrics.CycleResult(result)
	}
}

func (e *GridEngine) lastObservedLevel() (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastLevel == nil {
		return 0, false
	}
	return *e.lastLevel, true
}

func (e *GridEngine) setLastLevel(lvl int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastLevel = &lvl
}

func (e *GridEngine) setLastPrice(px float64) {
	e.mu.Lock()
	e.lastPrice = px
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.SetLastPrice(px)
	}
}

// EngineStatus is the operator-facing view served by the web server.
type EngineStatus struct {
	Symbol        string          `json:"symbol"`
	DryRun        bool            `json:"dry_run"`
	LastPrice     float64         `json:"last_price"`
	LastLevel     *int            `json:"last_level"`
	Position      domain.Position `json:"position"`
	AvgCost       float64         `json:"avg_cost"`
	UnrealizedPnL float64         `json:"unrealized_pnl"`
	OpenSlots     int             `json:"open_slots"`
}

// Status returns a consistent snapshot of the engine state.
func (e *GridEngine) Status() EngineStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pos := e.acct.Position()
	var lvl *int
	if e.lastLevel != nil {
		v := *e.lastLevel
		lvl = &v
	}
	return EngineStatus{
		Symbol:        e.cfg.Symbol,
		DryRun:        e.cfg.DryRun,
		LastPrice:     e.lastPrice,
		LastLevel:     lvl,
		Position:      pos,
		AvgCost:       pos.AvgCost(),
		UnrealizedPnL: pos.UnrealizedPnL(e.lastPrice),
		OpenSlots:     e.ledger.OpenCount(),
	}
}

// SlotView is one ledger entry in the status API.
type SlotView struct {
	Level int     `json:"level"`
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OpenSlots lists the non-empty ledger slots with their line prices.
func (e *GridEngine) OpenSlots() []SlotView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	slots := e.ledger.Slots()
	out := make([]SlotView, 0, len(slots))
	for level, qty := range slots {
		out = append(out, SlotView{Level: level, Price: e.geo.PriceOf(level), Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

func roundTo(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
