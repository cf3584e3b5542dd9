package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/phonescan/internal/app"
	"github.com/MrWong99/phonescan/internal/config"
	"github.com/MrWong99/phonescan/internal/observe"
)

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "path to the phonescan configuration file")
	watch := fs.Bool("watch", true, "reload the configuration file when it changes")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "phonescan: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, level := newLogger(stderr, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("phonescan starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		SampleRatio:    cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Recognizer registry ───────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinRecognizers(reg)

	printStartupSummary(stdout, cfg)

	application, err := app.New(ctx, cfg, app.WithRegistry(reg), app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
			go reloadOnHangup(ctx, w)
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if exit == 0 {
		slog.Info("goodbye")
	}
	return exit
}

// reloadOnHangup re-reads the config file on every SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := w.Reload(); err != nil {
				slog.Warn("config reload on SIGHUP failed", "err", err)
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        phonescan startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printEntry(w, "Recognizer", cfg.Recognizer.Name, cfg.Recognizer.Model)
	for _, fb := range cfg.Recognizer.Fallbacks {
		printEntry(w, "  fallback", fb.Name, fb.Model)
	}
	printEntry(w, "Results", string(cfg.Results.Driver), "")
	fmt.Fprintf(w, "║  Threshold       : %-19d ║\n", cfg.Stabilizer.Threshold)
	fmt.Fprintf(w, "║  Horizon         : %-19d ║\n", cfg.Stabilizer.HorizonFrames)
	if cfg.Scan.MaxSessions > 0 {
		fmt.Fprintf(w, "║  Max sessions    : %-19d ║\n", cfg.Scan.MaxSessions)
	} else {
		fmt.Fprintf(w, "║  Max sessions    : %-19s ║\n", "(unlimited)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printEntry(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}
