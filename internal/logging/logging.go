// Package logging builds the service's slog loggers and keeps attribute
// names consistent across packages.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// Common log attribute keys.
const (
	KeyOperation  = "operation"
	KeyUser       = "user_id"
	KeyExternalID = "external_id"
	KeyRequestID  = "request_id"
	KeyDuration   = "duration"
	KeyError      = "error"
)

// New returns a logger writing to w in the given format ("json" or "text")
// and the LevelVar controlling it, so the level can change at runtime.
func New(level, format string, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(level))

	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), lv
}

// ParseLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

func User(userID string) slog.Attr {
	return slog.String(KeyUser, userID)
}

func ExternalID(id string) slog.Attr {
	return slog.String(KeyExternalID, id)
}

func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration(KeyDuration, d)
}

// Err returns an error attribute, or an empty group that slog omits when
// err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}
