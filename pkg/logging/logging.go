// Package logging configures the global zerolog logger
package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// ServiceName tags every log line
const ServiceName = "ocsf-composer"

// Init sets the global level and output. Pretty output is a colored console
// for terminals; otherwise JSON lines go to stderr. Lines written through the
// standard library logger are routed to zerolog too.
func Init(level string, pretty bool, runID string) {
	zerolog.SetGlobalLevel(ParseLevel(level))

	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		}
	}

	ctx := zerolog.New(w).With().Timestamp().Str("service", ServiceName)
	if runID != "" {
		ctx = ctx.Str("run", runID)
	}
	zlog.Logger = ctx.Logger()

	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// ParseLevel falls back to info for anything zerolog does not recognise
func ParseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}
