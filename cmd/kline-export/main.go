// One-shot tool: export stored daily bars to Parquet, one file per code,
// for analysis tooling that reads columnar data.
//
// Usage:
//
//	go run cmd/kline-export/main.go [-code 000001]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"amarket/internal/config"
	"amarket/internal/domain"
	"amarket/internal/store"
	"amarket/internal/util"
)

func main() {
	codeFlag := flag.String("code", "", "export a single code instead of the whole universe")
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

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var codes []string
	if *codeFlag != "" {
		codes = []string{*codeFlag}
	} else {
		codes, err = db.ListCodes(ctx)
		if err != nil {
			log.Fatalf("failed to list codes: %v", err)
		}
	}

	start, _ := domain.ParseDate(cfg.Sync.StartDate)
	end := domain.Day(time.Now().UTC())
	exporter := store.NewParquetExporter(cfg.Storage.ExportDir)

	var exported, empty int
	for _, code := range codes {
		if ctx.Err() != nil {
			log.Fatalf("export interrupted: %v", ctx.Err())
		}

		bars, err := db.ReadBars(ctx, code, start, end)
		if err != nil {
			log.Fatalf("failed to read bars for %s: %v", code, err)
		}
		if len(bars) == 0 {
			empty++
			continue
		}
		if err := exporter.ExportBars(code, bars); err != nil {
			log.Fatalf("failed to export %s: %v", code, err)
		}
		exported++
		logger.Debug("exported code", "code", code, "rows", len(bars))
	}

	logger.Info("export complete",
		"dir", cfg.Storage.ExportDir,
		"exported", exported,
		"empty", empty,
	)
}
