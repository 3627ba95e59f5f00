// Command slobd is the 5/1 SLOB trading engine runner: live trading,
// backtesting, offline model training, database migration, and the
// shadow-mode analyzer, dispatched by a mode positional argument.
// Grounded on the teacher's single cmd/scanner binary (mode flags
// rather than a subcommand framework), adapted to a leading mode
// argument since spec §6 lists these as genuinely distinct CLI
// invocations rather than toggles on one long-running process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/benagen/slobtrading/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	mode := os.Args[1]
	args := os.Args[2:]

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch mode {
	case "live":
		err = runLive(ctx, args)
	case "backtest":
		err = runBacktest(ctx, args)
	case "train":
		err = runTrain(ctx, args)
	case "migrate":
		err = runMigrate(ctx, args)
	case "shadow":
		err = runShadow(ctx, args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "slobd: unknown mode %q\n", mode)
		usage()
		os.Exit(1)
	}

	if err != nil {
		slog.Error("slobd: command failed", "mode", mode, "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: slobd <live|backtest|train|migrate|shadow> [flags]")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
