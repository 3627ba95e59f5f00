package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/benagen/slobtrading/config"
	"github.com/benagen/slobtrading/internal/adapters/storage"
)

// runShadow reports how often the ML gate's TAKE/SKIP decision agreed
// with the rule-only outcome over the trailing window, per spec §6's
// `--db path --days N` CLI surface and SPEC_FULL.md §11's shadow-mode
// analyzer.
func runShadow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("shadow", flag.ExitOnError)
	configPath := fs.String("config", "config/config.yaml", "path to config file")
	dbPath := fs.String("db", "", "path to the sqlite database (defaults to the configured DSN)")
	days := fs.Int("days", 30, "lookback window in days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("runShadow: %w", err)
	}
	setupLogger(cfg.Log)

	dsn := cfg.Storage.DSN
	if *dbPath != "" {
		dsn = *dbPath
	}

	store, err := storage.Open(dsn)
	if err != nil {
		return fmt.Errorf("runShadow: %w", err)
	}
	defer store.Close()

	stats, err := store.ShadowAgreement(ctx, *days)
	if err != nil {
		return fmt.Errorf("runShadow: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	table.Append("window_days", fmt.Sprintf("%d", *days))
	table.Append("predictions", fmt.Sprintf("%d", stats.Total))
	agreementRate := 0.0
	if stats.Total > 0 {
		agreementRate = float64(stats.Agreements) / float64(stats.Total) * 100
	}
	table.Append("agreement_rate", fmt.Sprintf("%.1f%%", agreementRate))
	table.Append("take_win_rate", fmt.Sprintf("%.1f%%", stats.TakeWinRate*100))
	table.Append("skip_avoided_loss_rate", fmt.Sprintf("%.1f%%", stats.SkipAvoidedLossRate*100))
	table.Render()
	return nil
}
