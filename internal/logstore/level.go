package logstore

import (
	"log/slog"
	"strings"
)

// Level names stored in log_entries.level, most severe first.
const (
	LevelError = "error"
	LevelWarn  = "warn"
	LevelInfo  = "info"
	LevelDebug = "debug"
	LevelTrace = "trace"
)

// Levels lists every level from most to least severe.
var Levels = []string{LevelError, LevelWarn, LevelInfo, LevelDebug, LevelTrace}

var severity = map[string]int{
	LevelError: 0,
	LevelWarn:  1,
	LevelInfo:  2,
	LevelDebug: 3,
	LevelTrace: 4,
}

// ParseLevel canonicalizes a level name. "warning" is accepted for warn.
func ParseLevel(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = LevelWarn
	}
	_, ok := severity[name]
	return name, ok
}

// AtOrAbove returns level and every more severe level.
// An unknown level selects everything.
func AtOrAbove(level string) []string {
	n, ok := severity[level]
	if !ok {
		return Levels
	}
	return Levels[:n+1]
}

// FromSlog maps a slog level onto a stored level name.
func FromSlog(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	case level >= slog.LevelDebug:
		return LevelDebug
	default:
		return LevelTrace
	}
}
