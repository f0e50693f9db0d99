package logging

import (
	"log/slog"
	"os"

	"github.com/vinocount/session-service/config"
)

// Init настраивает глобальный slog в зависимости от среды.
func Init(cfg config.Logging) {
	var h slog.Handler
	switch cfg.Backend {
	case "zap":
		h = newZapHandler(cfg)
	default:
		h = newStdHandler(cfg)
	}

	h = h.WithAttrs([]slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Env),
	})

	slog.SetDefault(slog.New(h))
}

func newStdHandler(cfg config.Logging) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level(cfg),
		AddSource: cfg.AddSource,
	}
	// Text в dev, JSON в prod
	if cfg.Env == "dev" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func level(cfg config.Logging) slog.Level {
	if cfg.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
