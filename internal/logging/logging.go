// Package logging provides the slog-based logging convention shared by every
// FeatherBot component: a pre-bound "component" attribute plus ad-hoc
// "operation" and context fields at each call site.
package logging

import (
	"log/slog"
	"os"
)

var base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// SetLevel adjusts the minimum level of the default logger. Useful for tests
// that want to silence info-level chatter.
func SetLevel(level slog.Level) {
	base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Component returns a logger with "component" bound to name, used by every
// subsystem constructor (e.g. logging.Component("cron"), logging.Component("bus")).
func Component(name string) *slog.Logger {
	return base.With("component", name)
}
