// Package logger configures the process-wide zerolog logger. Call sites use
// github.com/rs/zerolog/log's bare package-level global directly rather than
// a wrapped Logger struct — this package's Setup configures that same
// global logger in place, so call sites elsewhere keep using zerolog/log
// directly.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger at the given level and format
// ("console" or "json"). Console format renders zerolog.ConsoleWriter over a
// colorable stdout when attached to a terminal, falling back to a
// non-colored writer otherwise — the same isatty-gated decision zerolog's
// own docs recommend.
func Setup(level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339

	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)

	var out zerolog.Logger
	if format == "json" {
		out = zerolog.New(os.Stdout)
	} else {
		writer := os.Stdout
		var cw *zerolog.ConsoleWriter
		if isatty.IsTerminal(writer.Fd()) {
			cw = &zerolog.ConsoleWriter{Out: colorable.NewColorable(writer), TimeFormat: time.Kitchen}
		} else {
			cw = &zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen, NoColor: true}
		}
		out = zerolog.New(cw)
	}

	log.Logger = out.With().Timestamp().Caller().Logger()
}
