// Package applog configures the process-wide structured logger and hands
// out per-subsystem sub-loggers, mirroring the named-logger-per-module
// layout of the original Python implementation's logging.getLogger calls.
package applog

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Configure sets the global log level from a config string (case
// insensitive: DEBUG, INFO, WARN/WARNING, ERROR). Unknown values fall back
// to info.
func Configure(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var base = zerolog.New(os.Stderr).With().Timestamp().Logger()

// For returns a sub-logger scoped to the named subsystem, e.g.
// "aredn_ldap_bridge.cache" analogue for the Go rewrite.
func For(subsystem string) zerolog.Logger {
	return base.With().Str("subsystem", subsystem).Logger()
}
