package cmd

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

var logger *slog.Logger

// initLogging installs the process logger on stderr. Commands call it
// lazily so flags and config are already merged.
func initLogging() {
	logger = newLogger(os.Stderr, viper.GetString("log.format"), viper.GetBool("verbose"))
	slog.SetDefault(logger)
}

// newLogger builds a text or JSON logger, at debug level when verbose.
// Unknown formats fall back to text.
func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
