package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/benagen/slobtrading/config"
	"github.com/benagen/slobtrading/internal/backtest"
	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/feature"
	"github.com/benagen/slobtrading/internal/ml"
	"github.com/benagen/slobtrading/internal/pattern"
	"github.com/benagen/slobtrading/internal/risk"
)

// runTrain fits a fresh model from labeled setups replayed out of
// historical bars, per spec §6's `--days N --relaxed-params --verbose
// --quiet` CLI surface. The offline training pipeline itself (the
// teacher has no analogue; the original system's model-training code
// is out of scope per SPEC_FULL.md §11) is reduced to: replay bars
// through BacktestDriver to get labeled feature vectors, then fit
// ml.Model.Train on them — BacktestDriver is the only place in this
// module that produces a (features, outcome) pair, so it is reused
// here as the training CLI's data source rather than inventing a
// second replay path. --days selects how many trailing calendar days
// of the input file to replay; since there is no scheduled fetch job
// in this module (see DESIGN.md), --input names the same CSV shape
// runBacktest reads.
func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", "config/config.yaml", "path to config file")
	input := fs.String("input", "", "path to a CSV bar file (timestamp,open,high,low,close,volume)")
	days := fs.Int("days", 0, "restrict training to the most recent N calendar days of input (0 = all)")
	relaxedParams := fs.Bool("relaxed-params", false, "widen pattern thresholds to surface more candidate setups")
	verbose := fs.Bool("verbose", false, "set log level to debug")
	quiet := fs.Bool("quiet", false, "suppress progress logging")
	output := fs.String("output", "models/model.json", "path to write the trained model artifact")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("runTrain: -input is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("runTrain: %w", err)
	}
	switch {
	case *quiet:
		cfg.Log.Level = "warn"
	case *verbose:
		cfg.Log.Level = "debug"
	}
	setupLogger(cfg.Log)

	bars, err := loadBarsCSV(*input)
	if err != nil {
		return fmt.Errorf("runTrain: %w", err)
	}
	if *days > 0 {
		bars = trailingDays(bars, *days)
	}

	store := barstore.New()
	for _, b := range bars {
		store.Append(b)
	}
	slog.Info("train: bars loaded", "path", *input, "count", store.Len(), "days", *days)

	pcfg := patternConfigFrom(cfg)
	if *relaxedParams {
		pcfg.Liquidity.MinScore *= 0.7
		pcfg.Consolidation.TouchTolerance *= 2
		pcfg.Consolidation.MaxDuration *= 2
	}

	riskMgr := risk.NewManager(cfg.Risk)
	gate := ml.NewGate(ml.NewModel(domain.FeatureNames), false, 0) // gate disabled during replay: every setup should reach a labeled outcome

	driver := backtest.New(backtest.Config{
		OpeningStart: pcfg.OpeningStart,
		OpeningEnd:   pcfg.OpeningEnd,
		Feature:      feature.Config{ATRPeriod: cfg.Pattern.ATRPeriod, ATRLookback: cfg.Pattern.ATRLookback, VolumeLookback: cfg.Pattern.LiqLookback},
		PointValue:   cfg.Risk.PointValue,
	}, pattern.New(pcfg), riskMgr, gate, nil)

	res := driver.Run(ctx, store)
	if len(res.Samples) == 0 {
		return fmt.Errorf("runTrain: no labeled samples produced from %d bars, nothing to train on", store.Len())
	}
	slog.Info("train: samples replayed", "count", len(res.Samples))

	X := make([][]float64, len(res.Samples))
	y := make([]bool, len(res.Samples))
	for i, s := range res.Samples {
		X[i] = s.Features
		y[i] = s.Win
	}

	model := ml.NewModel(domain.FeatureNames)
	result := model.Train(X, y, ml.DefaultTrainConfig())
	slog.Info("train: fit complete", "train_auc", result.TrainAUC, "samples", len(X))

	if err := model.Save(*output); err != nil {
		return fmt.Errorf("runTrain: save model: %w", err)
	}
	slog.Info("train: model saved", "path", *output)
	return nil
}

// trailingDays keeps only the bars falling within the most recent n
// calendar days present in bars (bars is assumed sorted ascending by
// timestamp, the BarStore invariant).
func trailingDays(bars []domain.Bar, n int) []domain.Bar {
	if len(bars) == 0 {
		return bars
	}
	cutoff := bars[len(bars)-1].Timestamp.AddDate(0, 0, -n)
	idx := 0
	for i, b := range bars {
		if !b.Timestamp.Before(cutoff) {
			idx = i
			break
		}
	}
	return bars[idx:]
}
