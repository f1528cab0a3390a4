package logging

import (
	"context"
	"log/slog"
	"strings"
)

// levelFilter drops records below its minimum level before they reach next,
// which is built at the most verbose level any logger needs. When a
// component attribute is attached and overrides names that component, the
// override becomes the minimum for the derived handler.
type levelFilter struct {
	next      slog.Handler
	floor     slog.Level
	overrides map[string]slog.Level
}

func newComponentLevelHandler(next slog.Handler, level slog.Level, overrides map[string]string) slog.Handler {
	parsed := make(map[string]slog.Level, len(overrides))
	for component, lvl := range overrides {
		parsed[strings.ToLower(strings.TrimSpace(component))] = parseLevel(lvl)
	}
	return &levelFilter{next: next, floor: level, overrides: parsed}
}

func (h *levelFilter) derive(next slog.Handler, floor slog.Level) *levelFilter {
	return &levelFilter{next: next, floor: floor, overrides: h.overrides}
}

func (h *levelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.floor && h.next.Enabled(ctx, level)
}

func (h *levelFilter) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.floor {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *levelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	floor := h.floor
	for _, attr := range attrs {
		if attr.Key != FieldComponent {
			continue
		}
		if lvl, ok := h.overrides[strings.ToLower(attr.Value.String())]; ok {
			floor = lvl
		}
	}
	return h.derive(h.next.WithAttrs(attrs), floor)
}

func (h *levelFilter) WithGroup(name string) slog.Handler {
	return h.derive(h.next.WithGroup(name), h.floor)
}

// WithLevelOverride returns a logger that drops records below level and keeps
// the attributes already attached to logger.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	if f, ok := logger.Handler().(*levelFilter); ok {
		return slog.New(f.derive(f.next, level))
	}
	return slog.New(&levelFilter{next: logger.Handler(), floor: level})
}
