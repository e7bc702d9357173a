package app

import (
	"io"
	"log/slog"
	"os"

	"docregistry/go-backend/internal/config"
	"docregistry/go-backend/internal/platform/privacylog"
)

// NewLogger builds a sanitizing logger for cfg. Unknown levels fall back to
// info.
func NewLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == config.FormatText {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(privacylog.WrapHandler(h))
}

func DefaultLogger() *slog.Logger {
	return NewLogger(os.Stdout, config.Default().Logging)
}
