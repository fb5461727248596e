package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_ClampsHysteresisToStep(t *testing.T) {
	path := writeConfig(t, `
grid:
  symbol: "USDT_THB"
  center_price: 33.0
  step_pct: 0.35
  min_move_pct: 0.1
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	// Below one grid step the hysteresis cannot stop fee-bleeding
	// oscillations, so it is raised to the step percentage.
	if cfg.Grid.MinMovePct != 0.35 {
		t.Errorf("Expected min_move_pct clamped to 0.35, got %f", cfg.Grid.MinMovePct)
	}
}

func TestLoadConfig_HysteresisDefaultsToStep(t *testing.T) {
	path := writeConfig(t, `
grid:
  symbol: "USDT_THB"
  center_price: 33.0
  step_pct: 0.5
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Grid.MinMovePct != 0.5 {
		t.Errorf("Expected unset min_move_pct to default to step_pct, got %f", cfg.Grid.MinMovePct)
	}
}

func TestLoadConfig_HysteresisAboveStepKept(t *testing.T) {
	path := writeConfig(t, `
grid:
  step_pct: 0.35
  min_move_pct: 0.7
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Grid.MinMovePct != 0.7 {
		t.Errorf("Expected explicit 0.7 kept, got %f", cfg.Grid.MinMovePct)
	}
}

func TestSellCloseOffset(t *testing.T) {
	// Absent: the classical pairing of a sell line with the slot below it.
	cfg, err := loadConfig(writeConfig(t, `
grid:
  symbol: "USDT_THB"
`))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if got := sellCloseOffset(cfg); got != 1 {
		t.Errorf("Expected default offset 1, got %d", got)
	}

	// Explicit zero is a real policy, not an unset value.
	cfg, err = loadConfig(writeConfig(t, `
grid:
  symbol: "USDT_THB"
  sell_close_offset: 0
`))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if got := sellCloseOffset(cfg); got != 0 {
		t.Errorf("Expected explicit offset 0 kept, got %d", got)
	}

	cfg, err = loadConfig(writeConfig(t, `
grid:
  sell_close_offset: 2
`))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if got := sellCloseOffset(cfg); got != 2 {
		t.Errorf("Expected offset 2, got %d", got)
	}
}

func TestSplitSymbol(t *testing.T) {
	base, quote, err := splitSymbol("USDT_THB")
	if err != nil {
		t.Fatalf("splitSymbol failed: %v", err)
	}
	if base != "USDT" || quote != "THB" {
		t.Errorf("Expected USDT/THB, got %s/%s", base, quote)
	}

	for _, bad := range []string{"USDTTHB", "_THB", "USDT_", "A_B_C"} {
		if _, _, err := splitSymbol(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}
