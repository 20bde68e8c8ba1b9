// One-shot tool: seed or refresh the stock universe. Pulls the listed
// universe from tushare, or loads a local CSV snapshot when -csv is given
// or universe.csv_path is configured.
//
// Usage:
//
//	go run cmd/stock-universe/main.go [-csv stocks.csv]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"amarket/internal/config"
	"amarket/internal/provider"
	"amarket/internal/store"
	"amarket/internal/universe"
	"amarket/internal/util"
)

func main() {
	csvFlag := flag.String("csv", "", "load the universe from a CSV file instead of the provider")
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

	csvPath := *csvFlag
	if csvPath == "" {
		csvPath = cfg.Universe.CSVPath
	}
	if csvPath == "" {
		// Provider path needs credentials; CSV loading does not.
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid config: %v", err)
		}
	}

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	api := provider.NewTushareAPI(cfg.Tushare.BaseURL, cfg.Tushare.Token)
	ref := universe.NewRefresher(api, db, cfg.Universe.ExcludeBoards)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var n int
	if csvPath != "" {
		n, err = ref.RefreshFromCSV(ctx, csvPath)
	} else {
		n, err = ref.Refresh(ctx)
	}
	if err != nil {
		log.Fatalf("universe refresh failed: %v", err)
	}
	logger.Info("universe ready", "codes", n)
}
