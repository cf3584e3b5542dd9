// Command phonescan finds phone numbers in streams of recognized camera
// frames.
//
// Usage:
//
//	phonescan [serve] [-config config.yaml]
//	phonescan replay [-threshold n] [-horizon n] [-json] recording.yaml...
//	phonescan eval [-concurrency n] [-json] recording.yaml...
//	phonescan stream -url ws://host:8080/v1/scan recording.yaml
//	phonescan export [-config config.yaml] -o results.xlsx
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MrWong99/phonescan/internal/app"
	"github.com/MrWong99/phonescan/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	name  string
	usage string
	run   func(args []string, stdout, stderr io.Writer) int
}

var commands = []command{
	{"serve", "run the scan server (default)", runServe},
	{"replay", "replay recorded frame streams and print the results", runReplay},
	{"eval", "score recordings against their expected numbers", runEval},
	{"stream", "send a recording to a running server over websocket", runStream},
	{"export", "write stored results to an XLSX workbook", runExport},
}

// run dispatches to a subcommand. Without a subcommand, or when the first
// argument is a flag, it serves.
func run(args []string, stdout, stderr io.Writer) int {
	name := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	if name == "help" {
		printUsage(stdout)
		return 0
	}
	for _, c := range commands {
		if c.name == name {
			return c.run(args, stdout, stderr)
		}
	}
	fmt.Fprintf(stderr, "phonescan: unknown command %q\n\n", name)
	printUsage(stderr)
	return 2
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: phonescan <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.usage)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. The returned LevelVar lets the config
// watcher change the level at runtime.
func newLogger(w io.Writer, level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(app.SlogLevel(level))
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})), lv
}
