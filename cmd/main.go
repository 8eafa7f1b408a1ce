// Command fleetsync keeps a fleet of trading accounts reconciled against a
// shared tabular document: it logs into each account through the terminal
// bridge, rebuilds its trade history, publishes a per-account report table
// and writes the outcome back to the roster.
//
// Usage:
//
//	fleetsync --config config.yaml
//	fleetsync --setup
//
// Required environment variables:
//
//	STORE_TOKEN                          bearer token of the tabular store
//	BINANCE_API_KEY, BINANCE_API_SECRET  only when the universe refresher is enabled
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/okorotkov/fleetsync/config"
	"github.com/okorotkov/fleetsync/internal/journal"
	"github.com/okorotkov/fleetsync/internal/scheduler"
	"github.com/okorotkov/fleetsync/internal/setup"
	"github.com/okorotkov/fleetsync/internal/store"
	"github.com/okorotkov/fleetsync/internal/terminal"
	"github.com/okorotkov/fleetsync/internal/universe"
)

func main() {
	_ = godotenv.Load()

	flags := config.ParseFlags()
	if flags.Setup {
		if err := setup.RunTUI(flags.ConfigPath); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := config.Get(flags.ConfigPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tables := store.NewHTTPTableClient(cfg.StoreBaseURL, cfg.Document, cfg.StoreToken, cfg.StoreTimeout)

	roster := store.NewRoster(tables, cfg.RosterTable, logger)
	if err := roster.Migrate(ctx); err != nil {
		logger.Fatal("roster schema migration failed", zap.Error(err))
	}

	reports := store.NewReportPublisher(tables, cfg.ChunkRows, logger)

	jnl, err := journal.Open(cfg.JournalDir)
	if err != nil {
		logger.Fatal("cycle journal open failed", zap.Error(err))
	}
	defer jnl.Close()

	bridge := terminal.NewBridgeClient(cfg.BridgeURL, cfg.BridgeTimeout)
	proc := terminal.NewExecController(cfg.TerminalPath, cfg.TerminalProc)
	gateway := terminal.NewGateway(proc, bridge, terminal.DefaultGatewayConfig(cfg.TerminalPath), logger)
	extractor := terminal.NewExtractor(terminal.DefaultExtractorConfig(), logger)

	schedCfg := scheduler.DefaultConfig()
	schedCfg.StaleAfter = cfg.StaleAfter
	schedCfg.Attempts = cfg.Attempts
	schedCfg.AttemptPause = cfg.AttemptPause
	schedCfg.IdleSleep = cfg.IdleSleep
	schedCfg.BetweenAccounts = cfg.BetweenAccounts
	schedCfg.ConfirmTries = cfg.ConfirmTries
	schedCfg.ConfirmPause = cfg.ConfirmPause
	schedCfg.WindowMonth = cfg.WindowMonth
	schedCfg.WindowDay = cfg.WindowDay

	sched := scheduler.New(roster, reports, gateway, extractor, jnl, schedCfg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})

	if cfg.UniverseEnabled {
		exchange := binance.NewClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))
		uniCfg := universe.DefaultConfig(cfg.UniverseTable)
		uniCfg.WindowDays = cfg.UniverseWindowDays
		uniCfg.Interval = cfg.UniverseInterval
		refresher := universe.New(tables, universe.NewBinanceBars(exchange), uniCfg, logger)
		g.Go(func() error {
			return refresher.Run(gctx)
		})
	}

	logger.Info("fleetsync started",
		zap.String("roster", cfg.RosterTable),
		zap.Duration("stale_after", cfg.StaleAfter),
		zap.Bool("universe", cfg.UniverseEnabled))

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("service stopped", zap.Error(err))
	}

	// give zap a beat to flush on shutdown
	logger.Info("fleetsync stopped")
	time.Sleep(100 * time.Millisecond)
}
