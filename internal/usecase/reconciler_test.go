package usecase

import (
	"math"
	"testing"

	"github.com/vitos/crypto_grid_bot/internal/domain"
)

func testGeometry(t *testing.T) domain.Geometry {
	t.Helper()
	geo, err := domain.NewGeometry(100.0, 1.0)
	if err != nil {
		t.Fatalf("geometry: %v", err)
	}
	return geo
}

func TestReconciler_PlanBuys_NearestFirst(t *testing.T) {
	geo := testGeometry(t)
	rec := NewReconciler(geo, 10, 10, 100.0, 1)
	ledger := NewGridLedger()

	// Drop from cell 2 to cell -1 crosses lines 1, 0, -1.
	intents := rec.Plan(2, -1, 1e9, 0, ledger)

	if len(intents) != 3 {
		t.Fatalf("Expected 3 buys, got %d", len(intents))
	}
	wantLevels := []int{1, 0, -1}
	for i, intent := range intents {
		if intent.Side != domain.SideBuy {
			t.Errorf("Intent %d: expected BUY, got %s", i, intent.Side)
		}
		if intent.Level != wantLevels[i] {
			t.Errorf("Intent %d: expected level %d, got %d", i, wantLevels[i], intent.Level)
		}
		wantPrice := geo.PriceOf(wantLevels[i])
		if intent.Price != wantPrice {
			t.Errorf("Intent %d: expected price %f, got %f", i, wantPrice, intent.Price)
		}
		if math.Abs(intent.Qty-100.0/wantPrice) > 1e-12 {
			t.Errorf("Intent %d: expected qty %f, got %f", i, 100.0/wantPrice, intent.Qty)
		}
	}
}

func TestReconciler_PlanBuys_BalanceRunsOut(t *testing.T) {
	geo := testGeometry(t)
	rec := NewReconciler(geo, 10, 10, 100.0, 1)
	ledger := NewGridLedger()

	// 250 of quote funds only two 100-notional buys.
	intents := rec.Plan(2, -1, 250.0, 0, ledger)

	if len(intents) != 2 {
		t.Fatalf("Expected 2 buys, got %d", len(intents))
	}
	if intents[0].Level != 1 || intents[1].Level != 0 {
		t.Errorf("Expected nearest lines funded first, got %d and %d", intents[0].Level, intents[1].Level)
	}
}

func TestReconciler_PlanBuys_GridFloor(t *testing.T) {
	geo := testGeometry(t)
	rec := NewReconciler(geo, 2, 10, 100.0, 1)
	ledger := NewGridLedger()

	// Crossing down to -5 with a floor at -2 stops at -2.
	intents := rec.Plan(0, -5, 1e9, 0, ledger)

	if len(intents) != 2 {
		t.Fatalf("Expected 2 buys within the floor, got %d", len(intents))
	}
	if intents[len(intents)-1].Level != -2 {
		t.Errorf("Expected deepest buy at -2, got %d", intents[len(intents)-1].Level)
	}
}

func TestReconciler_PlanSells_DrainsSlotBelow(t *testing.T) {
	geo := testGeometry(t)
	rec := NewReconciler(geo, 10, 10, 100.0, 1)

	ledger := NewGridLedger()
	ledger.Open(-1, 1.0)
	ledger.Open(-2, 1.0)

	// Rise from cell -2 to cell 0 crosses lines -1 and 0.
	// Line -1 drains slot -2, line 0 drains slot -1.
	intents := rec.Plan(-2, 0, 0, 1e9, ledger)

	if len(intents) != 2 {
		t.Fatalf("Expected 2 sells, got %d", len(intents))
	}
	if intents[0].Level != -1 || intents[0].CloseLevel != -2 {
		t.Errorf("First sell: expected line -1 closing -2, got %d closing %d",
			intents[0].Level, intents[0].CloseLevel)
	}
	if intents[1].Level != 0 || intents[1].CloseLevel != -1 {
		t.Errorf("Second sell: expected line 0 closing -1, got %d closing %d",
			intents[1].Level, intents[1].CloseLevel)
	}
	for i, intent := range intents {
		if intent.Side != domain.SideSell {
			t.Errorf("Intent %d: expected SELL, got %s", i, intent.Side)
		}
	}
}

func TestReconciler_PlanSells_SkipsEmptySlot(t *testing.T) {
	geo := testGeometry(t)
	rec := NewReconciler(geo, 10, 10, 100.0, 1)

	ledger := NewGridLedger()
	ledger.Open(-1, 1.0)

	// Only the line above the filled slot produces a sell; the other crossed
	// line is skipped without consuming balance.
	intents := rec.Plan(-2, 0, 0, 1e9, ledger)

	if len(intents) != 1 {
		t.Fatalf("Expected 1 sell, got %d", len(intents))
	}
	if intents[0].Level != 0 || intents[0].CloseLevel != -1 {
		t.Errorf("Expected line 0 closing -1, got %d closing %d",
			intents[0].Level, intents[0].CloseLevel)
	}
}

func TestReconciler_PlanSells_CappedByBaseBalance(t *testing.T) {
	geo := testGeometry(t)
	rec := NewReconciler(geo, 10, 10, 100.0, 1)

	ledger := NewGridLedger()
	ledger.Open(-1, 1.0)
	ledger.Open(-2, 1.0)

	// Only half a unit of base available: the first sell takes it all and the
	// second line is starved.
	intents := rec.Plan(-2, 0, 0, 0.5, ledger)

	if len(intents) != 1 {
		t.Fatalf("Expected 1 sell, got %d", len(intents))
	}
	if intents[0].Qty != 0.5 {
		t.Errorf("Expected qty capped at 0.5, got %f", intents[0].Qty)
	}
}

func TestReconciler_PlanSells_GridCeiling(t *testing.T) {
	geo := testGeometry(t)
	rec := NewReconciler(geo, 10, 2, 100.0, 1)

	ledger := NewGridLedger()
	for level := 0; level < 5; level++ {
		ledger.Open(level, 1.0)
	}

	intents := rec.Plan(0, 5, 0, 1e9, ledger)

	for _, intent := range intents {
		if intent.Level > 2 {
			t.Errorf("Sell above the ceiling at line %d", intent.Level)
		}
	}
}

func TestReconciler_PlanSells_CloseOffsetZero(t *testing.T) {
	geo := testGeometry(t)
	rec := NewReconciler(geo, 10, 10, 100.0, 0)

	ledger := NewGridLedger()
	ledger.Open(0, 1.0)

	// Offset 0 pairs a sell line with the slot at the same index.
	intents := rec.Plan(-1, 0, 0, 1e9, ledger)

	if len(intents) != 1 {
		t.Fatalf("Expected 1 sell, got %d", len(intents))
	}
	if intents[0].CloseLevel != 0 {
		t.Errorf("Expected close level 0, got %d", intents[0].CloseLevel)
	}
}

func TestReconciler_NoMove(t *testing.T) {
	geo := testGeometry(t)
	rec := NewReconciler(geo, 10, 10, 100.0, 1)
	ledger := NewGridLedger()

	if intents := rec.Plan(1, 1, 1e9, 1e9, ledger); intents != nil {
		t.Errorf("Expected no intents on unchanged level, got %d", len(intents))
	}
}

func TestReconciler_PlanDoesNotMutateLedger(t *testing.T) {
	geo := testGeometry(t)
	rec := NewReconciler(geo, 10, 10, 100.0, 1)

	ledger := NewGridLedger()
	ledger.Open(-1, 1.0)

	rec.Plan(-2, 0, 0, 1e9, ledger)

	if ledger.Available(-1) != 1.0 {
		t.Error("Plan must not drain the ledger")
	}
}
