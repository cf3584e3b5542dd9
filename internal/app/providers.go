package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/phonescan/internal/config"
	"github.com/MrWong99/phonescan/internal/observe"
	"github.com/MrWong99/phonescan/internal/resilience"
	"github.com/MrWong99/phonescan/internal/results"
	"github.com/MrWong99/phonescan/internal/results/postgres"
	"github.com/MrWong99/phonescan/internal/results/sqlite"
)

// OpenStore opens the results store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.ResultsConfig) (results.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return results.NewMemoryStore(), nil
	case config.DriverPostgres:
		s, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("app: open postgres results store: %w", err)
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("app: open sqlite results store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("app: unknown results driver %q", cfg.Driver)
	}
}

// BuildRecognizer creates the configured primary recognizer and its
// fallbacks from reg and wraps them in an [resilience.OCRFallback].
func BuildRecognizer(reg *config.Registry, cfg config.RecognizerConfig, metrics *observe.Metrics) (*resilience.OCRFallback, error) {
	primary, err := reg.CreateRecognizer(cfg.ProviderEntry)
	if err != nil {
		return nil, fmt.Errorf("app: create recognizer %q: %w", cfg.Name, err)
	}
	fb := resilience.NewOCRFallback(primary, cfg.Name, resilience.FallbackConfig{}, metrics)
	slog.Info("recognizer created", "name", cfg.Name, "model", cfg.Model)

	for _, entry := range cfg.Fallbacks {
		p, err := reg.CreateRecognizer(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create fallback recognizer %q: %w", entry.Name, err)
		}
		fb.AddFallback(entry.Name, p)
		slog.Info("fallback recognizer created", "name", entry.Name, "model", entry.Model)
	}
	return fb, nil
}
