package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init configures the global slog default. Format is "text" or "json";
// a nil writer means os.Stderr.
func Init(level slog.Level, format string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// New returns a logger tagged with the component name.
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}

// Level maps the CLI verbose switch to a slog level.
func Level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
