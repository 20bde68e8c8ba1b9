// Incremental daily-bar sync: reconciles the local store against the
// trading calendar and pulls missing ranges from tushare under the
// account's rate quota.
//
// Usage:
//
//	go run cmd/kline-sync/main.go [-end YYYY-MM-DD]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"amarket/internal/calendar"
	"amarket/internal/config"
	"amarket/internal/domain"
	"amarket/internal/ingest"
	"amarket/internal/provider"
	"amarket/internal/store"
	"amarket/internal/util"
)

func main() {
	endFlag := flag.String("end", "", "sync up to this date instead of today (YYYY-MM-DD)")
	flag.Parse()

	cfgPath := "config/amarket.yaml"
	if p := os.Getenv("AMARKET_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if os.IsNotExist(err) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	end := domain.Day(time.Now().UTC())
	if *endFlag != "" {
		end, err = domain.ParseDate(*endFlag)
		if err != nil {
			log.Fatalf("invalid -end date: %v", err)
		}
	}

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	api := provider.NewTushareAPI(cfg.Tushare.BaseURL, cfg.Tushare.Token)
	client := provider.NewClient(
		api,
		util.NewRateLimiter(cfg.Tushare.MaxCalls, cfg.Tushare.Window()),
		provider.NewPatternBanDetector(),
	)

	finder := ingest.NewGapFinder(calendar.NewSource(api), db, cfg.Sync.MaxSpanDays)
	worker := ingest.NewWorker(client, finder, db,
		cfg.Sync.MaxAttempts, cfg.Sync.Cooldown(), cfg.Sync.RetryDelay())

	startDate, _ := domain.ParseDate(cfg.Sync.StartDate)
	coord := ingest.NewCoordinator(worker, db, cfg.Sync.Workers, startDate)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sum, err := coord.Run(ctx, end)
	if err != nil {
		log.Fatalf("sync failed: %v", err)
	}
	logger.Info("sync complete",
		"synced", sum.Synced,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"rows", sum.Rows,
	)
	if sum.Failed > 0 {
		os.Exit(1)
	}
}
