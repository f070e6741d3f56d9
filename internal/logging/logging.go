// Package logging configures the process-wide slog logger.
//
// A single [slog.LevelVar] backs every handler built here, so the level
// seeded from linker flags at startup can be raised or lowered once flags
// have been parsed without replacing loggers already handed out.
package logging

import (
	"io"
	"log/slog"

	"github.com/dusted-go/logging/prettylog"
)

// Shared level for all handlers created by this package.
var level slog.LevelVar

// Controls the handler installed by [Configure].
type Options struct {
	Quiet   bool // Only warnings and errors.
	Verbose bool // Annotate records with their source location.
	Debug   bool // Include debug records. Takes precedence over Quiet.
}

// Creates a pretty handler writing to w at the shared level.
func NewHandler(w io.Writer, addSource bool) slog.Handler {
	return prettylog.New(&slog.HandlerOptions{
		Level:     &level,
		AddSource: addSource,
	}, prettylog.WithDestinationWriter(w))
}

// Installs a default logger writing to w with the level derived from opts.
func Configure(w io.Writer, opts Options) {
	level.Set(LevelFor(opts))
	slog.SetDefault(slog.New(NewHandler(w, opts.Verbose)))
}

// Returns the level implied by opts.
func LevelFor(opts Options) slog.Level {
	switch {
	case opts.Debug:
		return slog.LevelDebug
	case opts.Quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
