package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"livereload/internal/reloader"
)

// newLogger builds the process logger. format is "json" or "console".
func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// logPublisher writes reloader lifecycle events at debug level.
type logPublisher struct {
	log zerolog.Logger
}

func (p logPublisher) Publish(e reloader.Event) {
	ev := p.log.Debug().Str("event", e.Name).Str("artifact", e.Path)
	if e.CycleID != "" {
		ev = ev.Str("cycle", e.CycleID)
	}
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("reloader event")
}
