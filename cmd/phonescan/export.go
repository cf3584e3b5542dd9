package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/phonescan/internal/app"
	"github.com/MrWong99/phonescan/internal/config"
	"github.com/MrWong99/phonescan/internal/export"
	"github.com/MrWong99/phonescan/internal/results"
)

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "configuration file naming the results store")
	outPath := fs.String("o", "results.xlsx", "output workbook")
	limit := fs.Int("limit", 0, "maximum number of results (0 uses the store default)")
	sessionID := fs.String("session", "", "only export results of this session")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "phonescan export: %v\n", err)
		return 1
	}
	if cfg.Results.Driver == config.DriverMemory {
		fmt.Fprintln(stderr, "phonescan export: the memory results store does not outlive the server; configure postgres or sqlite")
		return 1
	}
	logger, _ := newLogger(stderr, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg.Results)
	if err != nil {
		fmt.Fprintf(stderr, "phonescan export: %v\n", err)
		return 1
	}
	defer store.Close()

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(stderr, "phonescan export: %v\n", err)
		return 1
	}
	n, err := export.New(store, logger).WriteXLSX(ctx, f, results.ListOptions{Limit: *limit, SessionID: *sessionID})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(stderr, "phonescan export: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %d results to %s\n", n, *outPath)
	return 0
}
