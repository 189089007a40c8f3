// Package logging configures the process-wide zerolog logger.
//
// Components take child loggers via For("component") so every line carries a
// component tag and imports are parseable by log shippers without regexes.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	base zerolog.Logger
)

// Setup initialises the base logger. level is a zerolog level name
// ("debug", "info", ...); empty or unknown falls back to info. When console
// is true, output is human-formatted instead of JSON (useful for the CLI
// subcommands; the daemon logs JSON).
func Setup(level string, console bool) {
	once.Do(func() {
		lv, err := zerolog.ParseLevel(level)
		if err != nil || level == "" {
			lv = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lv)
		zerolog.TimeFieldFormat = time.RFC3339

		var w io.Writer = os.Stderr
		if console {
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		}
		base = zerolog.New(w).With().Timestamp().Logger()
	})
}

// For returns a child logger tagged with the given component name.
func For(component string) zerolog.Logger {
	Setup("", false)
	return base.With().Str("component", component).Logger()
}
