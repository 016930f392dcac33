package events

import (
	"context"
	"log/slog"
	"sort"
)

// LogEmitter writes committed events to a structured logger.
type LogEmitter struct {
	Logger *slog.Logger
	Level  slog.Level
}

// Emit implements the Emitter interface.
func (l LogEmitter) Emit(e Event) {
	if e == nil {
		return
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	evt := e.Event()
	args := []any{slog.String("event", e.EventType())}
	if evt != nil && len(evt.Attributes) > 0 {
		keys := make([]string, 0, len(evt.Attributes))
		for k := range evt.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make([]any, 0, len(keys))
		for _, k := range keys {
			attrs = append(attrs, slog.String(k, evt.Attributes[k]))
		}
		args = append(args, slog.Group("attributes", attrs...))
	}
	logger.Log(context.Background(), l.Level, "ledger event", args...)
}
