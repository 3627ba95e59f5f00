package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benagen/slobtrading/config"
	"github.com/benagen/slobtrading/internal/adapters/ibgateway"
	"github.com/benagen/slobtrading/internal/adapters/papergateway"
	"github.com/benagen/slobtrading/internal/adapters/storage"
	"github.com/benagen/slobtrading/internal/broker"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/engine"
	"github.com/benagen/slobtrading/internal/executor"
	"github.com/benagen/slobtrading/internal/feature"
	"github.com/benagen/slobtrading/internal/ml"
	"github.com/benagen/slobtrading/internal/pattern"
	"github.com/benagen/slobtrading/internal/risk"
)

// runLive wires and starts LiveTradingEngine: StatePersistence, a
// BrokerGateway (paper or the IB-shaped wire adapter per
// cfg.Broker.Paper), PatternFinder, RiskManager, the ML gate, and
// OrderExecutor, then blocks in Engine.Run until ctx is cancelled.
func runLive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	configPath := fs.String("config", "config/config.yaml", "path to config file")
	verbose := fs.Bool("verbose", false, "set log level to debug")
	metricsAddr := fs.String("metrics-addr", ":9090", "address to serve /metrics on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("runLive: %w", err)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	setupLogger(cfg.Log)

	store, err := storage.Open(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("runLive: open storage: %w", err)
	}
	defer store.Close()

	gw := newGateway(cfg)

	finder := pattern.New(patternConfigFrom(cfg))
	riskMgr := risk.NewManager(cfg.Risk)

	model := ml.NewModel(domain.FeatureNames)
	if cfg.ML.ModelPath != "" {
		if m, err := ml.LoadModel(cfg.ML.ModelPath); err == nil {
			model = m
		} else {
			slog.Warn("live: no model artifact loaded, gate runs untrained", "path", cfg.ML.ModelPath, "err", err)
		}
	}
	gate := ml.NewGate(model, cfg.ML.Enabled, cfg.ML.Threshold)

	var updater *ml.OnlineUpdater
	if cfg.ML.OnlineUpdates {
		updater = ml.NewOnlineUpdater(model, 0.01)
	}

	exec := executor.New(executor.Config{
		PaperTrading:        cfg.Broker.Paper,
		MarginPctOfNotional: cfg.Broker.MarginPctOfNotional,
		PointValue:          cfg.Risk.PointValue,
		ManualBracket:       true, // the IB-shaped wire bridge has no native bracket support, see DESIGN.md
	}, gw)

	openStart, openEnd, err := cfg.OpeningWindow()
	if err != nil {
		return fmt.Errorf("runLive: %w", err)
	}
	sessionEnd, err := cfg.SessionEndOffset()
	if err != nil {
		return fmt.Errorf("runLive: %w", err)
	}

	eng := engine.New(engine.Config{
		Symbol:             cfg.Session.Symbol,
		OpeningStart:       openStart,
		OpeningEnd:         openEnd,
		SessionEnd:         sessionEnd,
		CancelRestingAtEOD: cfg.Session.CancelRestingAtEOD,
		Feature:            feature.Config{ATRPeriod: cfg.Pattern.ATRPeriod, ATRLookback: cfg.Pattern.ATRLookback, VolumeLookback: cfg.Pattern.LiqLookback},
		PointValue:         cfg.Risk.PointValue,
	}, gw, store, finder, riskMgr, gate, updater, exec)

	go serveMetrics(*metricsAddr)

	slog.Info("slobd: live engine starting", "symbol", cfg.Session.Symbol, "paper", cfg.Broker.Paper)
	if err := eng.Run(ctx); err != nil {
		return fmt.Errorf("runLive: %w", err)
	}
	slog.Info("slobd: live engine stopped cleanly")
	return nil
}

func newGateway(cfg *config.Config) broker.Gateway {
	if cfg.Broker.Paper {
		return papergateway.New(cfg.Risk.InitialCapital)
	}
	return ibgateway.New(ibgateway.Config{
		Host:              cfg.Broker.Host,
		Port:              cfg.Broker.Port,
		ClientID:          cfg.Broker.ClientID,
		Account:           cfg.Broker.Account,
		Paper:             cfg.Broker.Paper,
		ReadOnly:          cfg.Broker.ReadOnly,
		HeartbeatEvery:    cfg.Broker.HeartbeatEvery,
		MaxMissedBeats:    cfg.Broker.MaxMissedBeats,
		ReconnectCap:      cfg.Broker.ReconnectCap,
		ReconnectMaxDelay: cfg.Broker.ReconnectMaxDelay,
	})
}

func patternConfigFrom(cfg *config.Config) pattern.Config {
	openStart, openEnd, _ := cfg.OpeningWindow()
	p := cfg.Pattern
	return pattern.Config{
		OpeningStart: openStart,
		OpeningEnd:   openEnd,
		Consolidation: pattern.ConsolidationConfig{
			ATRPeriod: p.ATRPeriod, ATRLookback: p.ATRLookback,
			KMin: p.ConsolKMin, KMax: p.ConsolKMax,
			MinDuration: p.ConsolMinDuration, MaxDuration: p.ConsolMaxDuration,
			TrendThreshold: p.ConsolTrendThreshold, TouchTolerance: p.ConsolTouchTolerance,
		},
		NoWick: pattern.NoWickConfig{
			Lookback: p.NoWickLookback, WickPercentile: p.NoWickWickPercentile,
			BodyMinPct: p.NoWickBodyMinPct, BodyMaxPct: p.NoWickBodyMaxPct,
		},
		Liquidity: pattern.LiquidityConfig{
			Lookback: p.LiqLookback, VolumeThreshold: p.LiqVolumeThreshold, MinScore: p.LiqMinScore,
		},
		MaxSweepWindow:       p.MaxSweepWindow,
		MaxEntryWait:         p.MaxEntryWait,
		MaxRetracementPoints: p.MaxRetracementPoints,
		StopBuffer:           p.StopBuffer,
		SpikeClampMultiple:   p.SpikeClampMultiple,
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("slobd: metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		slog.Error("slobd: metrics server failed", "err", err)
	}
}
