package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/benagen/slobtrading/config"
	"github.com/benagen/slobtrading/internal/backtest"
	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/feature"
	"github.com/benagen/slobtrading/internal/ml"
	"github.com/benagen/slobtrading/internal/pattern"
	"github.com/benagen/slobtrading/internal/risk"
)

// runBacktest replays a CSV bar file through BacktestDriver and prints a
// trade-by-trade and summary table, per spec §6's `--input <csv>
// --relaxed-params --quiet` CLI surface.
func runBacktest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	configPath := fs.String("config", "config/config.yaml", "path to config file")
	input := fs.String("input", "", "path to a CSV bar file (timestamp,open,high,low,close,volume)")
	relaxedParams := fs.Bool("relaxed-params", false, "widen pattern thresholds to surface more candidate setups")
	quiet := fs.Bool("quiet", false, "suppress per-trade logging, print only the summary table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("runBacktest: -input is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("runBacktest: %w", err)
	}
	if *quiet {
		cfg.Log.Level = "warn"
	}
	setupLogger(cfg.Log)

	bars, err := loadBarsCSV(*input)
	if err != nil {
		return fmt.Errorf("runBacktest: %w", err)
	}

	store := barstore.New()
	for _, b := range bars {
		store.Append(b)
	}
	slog.Info("backtest: bars loaded", "path", *input, "count", store.Len())

	pcfg := patternConfigFrom(cfg)
	if *relaxedParams {
		pcfg.Liquidity.MinScore *= 0.7
		pcfg.Consolidation.TouchTolerance *= 2
		pcfg.Consolidation.MaxDuration *= 2
	}

	riskMgr := risk.NewManager(cfg.Risk)
	model := ml.NewModel(domain.FeatureNames)
	if cfg.ML.ModelPath != "" {
		if m, err := ml.LoadModel(cfg.ML.ModelPath); err == nil {
			model = m
		}
	}
	gate := ml.NewGate(model, cfg.ML.Enabled, cfg.ML.Threshold)

	driver := backtest.New(backtest.Config{
		OpeningStart: pcfg.OpeningStart,
		OpeningEnd:   pcfg.OpeningEnd,
		Feature:      feature.Config{ATRPeriod: cfg.Pattern.ATRPeriod, ATRLookback: cfg.Pattern.ATRLookback, VolumeLookback: cfg.Pattern.LiqLookback},
		PointValue:   cfg.Risk.PointValue,
	}, pattern.New(pcfg), riskMgr, gate, nil)

	res := driver.Run(ctx, store)
	printBacktestResult(res)
	return nil
}

// printBacktestResult renders the trade log and a closing summary,
// grounded on the teacher's notify.Console.PrintBacktest shape: a
// tablewriter table of per-row detail followed by a plain-text summary
// block.
func printBacktestResult(res backtest.Result) {
	if len(res.Trades) == 0 {
		fmt.Println("\n  No trades generated by this backtest run.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Entry", "Exit", "Dir", "Size", "Reason", "PnL(pts)", "PnL($)", "Result")

	var wins, losses, breakevens int
	var totalPnL float64
	for i, t := range res.Trades {
		table.Append(
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.2f @ %s", t.EntryPrice, t.EntryTime.Format("01-02 15:04")),
			fmt.Sprintf("%.2f @ %s", t.ExitPrice, t.ExitTime.Format("01-02 15:04")),
			string(t.ExitReason),
			fmt.Sprintf("%d", t.Size),
			string(t.ExitReason),
			fmt.Sprintf("%.2f", t.PnLPoints),
			fmt.Sprintf("%.2f", t.PnLCash),
			string(t.Result),
		)
		totalPnL += t.PnLCash
		switch t.Result {
		case domain.ResultWin:
			wins++
		case domain.ResultLoss:
			losses++
		default:
			breakevens++
		}
	}
	table.Render()

	winRate := float64(wins) / float64(len(res.Trades)) * 100
	fmt.Printf("\n=== Backtest summary ===\n")
	fmt.Printf("trades: %d  wins: %d  losses: %d  breakeven: %d  win_rate: %.1f%%\n",
		len(res.Trades), wins, losses, breakevens, winRate)
	fmt.Printf("total_pnl: $%.2f  final_capital: $%.2f  max_drawdown: %.1f%%\n",
		totalPnL, res.Final.CurrentCapital, res.MaxDrawdown*100)
	fmt.Printf("shadow_predictions: %d\n", len(res.Shadows))
}

// loadBarsCSV reads a minute-bar CSV with columns
// timestamp,open,high,low,close,volume (timestamp as RFC3339). No
// parsing library appears anywhere in the retrieved corpus for this
// shape (the teacher and the rest of the pack consume JSON/SQL, never
// flat files), so this uses encoding/csv directly rather than
// introducing a dependency for a single six-column reader.
func loadBarsCSV(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	var bars []domain.Bar
	lineNo := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loadBarsCSV: line %d: %w", lineNo+1, err)
		}
		lineNo++
		if lineNo == 1 && len(rec) > 0 && rec[0] == "timestamp" {
			continue // header row
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("loadBarsCSV: line %d: expected 6 columns, got %d", lineNo, len(rec))
		}
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("loadBarsCSV: line %d: timestamp: %w", lineNo, err)
		}
		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			vals[i], err = strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("loadBarsCSV: line %d: column %d: %w", lineNo, i+2, err)
			}
		}
		bars = append(bars, domain.Bar{Timestamp: ts.UTC(), Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]})
	}
	return bars, nil
}
