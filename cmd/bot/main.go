package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_grid_bot/internal/domain"
	"github.com/vitos/crypto_grid_bot/internal/infrastructure/exchange"
	"github.com/vitos/crypto_grid_bot/internal/infrastructure/logger"
	"github.com/vitos/crypto_grid_bot/internal/infrastructure/metrics"
	"github.com/vitos/crypto_grid_bot/internal/infrastructure/storage"
	"github.com/vitos/crypto_grid_bot/internal/usecase"
	"github.com/vitos/crypto_grid_bot/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange struct {
		APIKey       string `yaml:"api_key"`
		APISecret    string `yaml:"api_secret"`
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"exchange"`
	Grid struct {
		Symbol          string  `yaml:"symbol"`
		CenterPrice     float64 `yaml:"center_price"`
		StepPct         float64 `yaml:"step_pct"`
		LevelsDown      int     `yaml:"levels_down"`
		LevelsUp        int     `yaml:"levels_up"`
		OrderNotional   float64 `yaml:"order_notional"`
		FeeRate         float64 `yaml:"fee_rate"`
		CooldownSec     int     `yaml:"cooldown_sec"`
		MinMovePct      float64 `yaml:"min_move_pct"`
		SellCloseOffset *int    `yaml:"sell_close_offset"`
		PriceRound      int     `yaml:"price_round"`
		QtyRound        int     `yaml:"qty_round"`
	} `yaml:"grid"`
	Polling struct {
		RefreshSec  int `yaml:"refresh_sec"`
		TradesFetch int `yaml:"trades_fetch"`
		VWAPTail    int `yaml:"vwap_tail"`
	} `yaml:"polling"`
	Paper struct {
		StartBase  float64 `yaml:"start_base"`
		StartQuote float64 `yaml:"start_quote"`
	} `yaml:"paper"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	DryRun bool `yaml:"dry_run"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	// Env vars win over the yaml for credentials.
	if v := os.Getenv("BITKUB_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("BITKUB_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}

	// Hysteresis below one grid step lets a sub-step oscillation trade back
	// and forth across the same line, paying fees each time.
	if cfg.Grid.MinMovePct < cfg.Grid.StepPct {
		cfg.Grid.MinMovePct = cfg.Grid.StepPct
	}
	if cfg.Polling.RefreshSec <= 0 {
		cfg.Polling.RefreshSec = 10
	}
	if cfg.Polling.TradesFetch <= 0 {
		cfg.Polling.TradesFetch = 100
	}
	if cfg.Polling.VWAPTail <= 0 {
		cfg.Polling.VWAPTail = 20
	}
	return &cfg, nil
}

// sellCloseOffset resolves the sell pairing policy: absent means the
// classical offset of 1, an explicit 0 pairs a sell line with its own slot.
func sellCloseOffset(cfg *Config) int {
	if cfg.Grid.SellCloseOffset == nil {
		return 1
	}
	return *cfg.Grid.SellCloseOffset
}

// splitSymbol turns "USDT_THB" into its base and quote assets.
func splitSymbol(sym string) (base, quote string, err error) {
	parts := strings.Split(sym, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("symbol %q is not BASE_QUOTE", sym)
	}
	return parts[0], parts[1], nil
}

func main() {
	// .env is optional, real deployments use environment variables
	_ = godotenv.Load()

	// 1. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	baseAsset, quoteAsset, err := splitSymbol(cfg.Grid.Symbol)
	if err != nil {
		log.Fatal("Bad symbol in config", zap.Error(err))
	}

	// 3. Grid geometry and planning
	geo, err := domain.NewGeometry(cfg.Grid.CenterPrice, cfg.Grid.StepPct)
	if err != nil {
		log.Fatal("Bad grid config", zap.Error(err))
	}
	gate := usecase.NewGate(time.Duration(cfg.Grid.CooldownSec)*time.Second, cfg.Grid.MinMovePct)
	rec := usecase.NewReconciler(geo, cfg.Grid.LevelsDown, cfg.Grid.LevelsUp,
		cfg.Grid.OrderNotional, sellCloseOffset(cfg))
	acct := usecase.NewAccountant(cfg.Grid.FeeRate)

	// 4. Init Exchange (Bitkub)
	bitkub := exchange.NewBitkubAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret,
		cfg.Exchange.RESTEndpoint, cfg.Grid.PriceRound, cfg.Grid.QtyRound)

	var ex domain.Exchange = bitkub
	if cfg.DryRun {
		log.Info("dry-run mode: orders are simulated against paper balances",
			zap.Float64("start_base", cfg.Paper.StartBase),
			zap.Float64("start_quote", cfg.Paper.StartQuote))
		ex = exchange.NewDryRunExchange(bitkub, baseAsset, quoteAsset,
			cfg.Paper.StartBase, cfg.Paper.StartQuote)
	}

	// 5. Init Storage
	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = "grid_bot.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 6. Init Engine
	m := metrics.New()
	engineCfg := usecase.EngineConfig{
		Symbol:      cfg.Grid.Symbol,
		BaseAsset:   baseAsset,
		QuoteAsset:  quoteAsset,
		TradesFetch: cfg.Polling.TradesFetch,
		VWAPTail:    cfg.Polling.VWAPTail,
		PriceRound:  cfg.Grid.PriceRound,
		QtyRound:    cfg.Grid.QtyRound,
		DryRun:      cfg.DryRun,
	}
	engine := usecase.NewGridEngine(engineCfg, geo, gate, rec, ex, store, acct, log, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Restore(ctx); err != nil {
		log.Fatal("Failed to restore engine state", zap.Error(err))
	}

	// 7. Live trade stream (observability only, pricing stays poll-based)
	stream := exchange.NewTradeStream(cfg.Exchange.WSEndpoint)
	stream.OnTrade(func(symbol string, trade domain.PublicTrade) {
		m.SetLastPrice(trade.Price)
		log.Debug("live trade",
			zap.String("symbol", symbol),
			zap.Float64("price", trade.Price),
			zap.Float64("amount", trade.Amount))
	})
	if err := stream.Connect(cfg.Grid.Symbol); err != nil {
		log.Warn("Trade stream unavailable, continuing without it", zap.Error(err))
	} else {
		go func() {
			<-stream.Done()
			log.Warn("Trade stream disconnected")
		}()
	}
	defer stream.Close()

	// 8. Web Server
	srv := web.NewServer(cfg.Server.Port, engine, log)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error("Web server error", zap.Error(err))
		}
	}()

	// 9. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-stop
		log.Info("Shutting down")
		cancel()
	}()

	if err := engine.Run(ctx, time.Duration(cfg.Polling.RefreshSec)*time.Second); err != nil {
		log.Error("Engine stopped with error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Web server shutdown error", zap.Error(err))
	}
	log.Info("Stopped")
}
