// Package logging provides slog setup and shared attribute helpers so
// that log lines use consistent keys across the codebase.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Common attribute keys.
const (
	KeyUser      = "user"
	KeyOperation = "operation"
	KeyError     = "error"
	KeySummary   = "summary"
	KeyCount     = "count"
)

// Setup configures the default slog logger writing to stderr. The level
// string is case-insensitive ("debug", "info", "warn", "error"); anything
// unrecognized falls back to info.
func Setup(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// User returns a slog attribute carrying the username. Passwords must
// never be logged; this is the only identity attribute in use.
func User(username string) slog.Attr {
	return slog.String(KeyUser, username)
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Err returns a slog attribute for an error. A nil error yields an empty
// group which slog omits from output, so Err(maybeNil) is always safe.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}
