package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogEntry is one JSON log line. Component, bot and tick attributes are
// promoted out of Fields so one bot or one tick can be filtered directly.
type LogEntry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Bot       string         `json:"bot,omitempty"`
	TickID    string         `json:"tick_id,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// entryHandler folds attributes bound with With into base once, so Handle
// only has to apply the record's own attributes.
type entryHandler struct {
	level     slog.Level
	addSource bool
	prefix    string
	base      LogEntry

	mu *sync.Mutex
	w  io.Writer
}

func newEntryHandler(w io.Writer, level slog.Level, addSource bool) *entryHandler {
	return &entryHandler{level: level, addSource: addSource, mu: &sync.Mutex{}, w: w}
}

func (h *entryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *entryHandler) Handle(_ context.Context, record slog.Record) error {
	entry := h.base
	entry.Fields = cloneFields(h.base.Fields, record.NumAttrs())
	entry.Level = strings.ToLower(record.Level.String())
	entry.Timestamp = record.Time.UTC().Format(time.RFC3339Nano)
	entry.Message = record.Message

	record.Attrs(func(attr slog.Attr) bool {
		entry.add(h.prefix, attr)
		return true
	})
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}
	if h.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		if frame.File != "" {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(line, '\n'))
	return err
}

func (h *entryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.base.Fields = cloneFields(h.base.Fields, len(attrs))
	for _, attr := range attrs {
		next.base.add(h.prefix, attr)
	}
	return &next
}

func (h *entryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// add stores attr, promoting the correlation keys when they are strings.
func (e *LogEntry) add(prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := prefix + attr.Key
	if text, ok := attr.Value.Any().(string); ok {
		switch key {
		case "component":
			e.Component = text
			return
		case "bot":
			e.Bot = text
			return
		case "tick_id":
			e.TickID = text
			return
		}
	}

	e.Fields[key] = jsonValue(attr.Value)
}

func jsonValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := make(map[string]any, len(value.Group()))
		for _, item := range value.Group() {
			group[item.Key] = jsonValue(item.Value.Resolve())
		}
		return group
	case slog.KindAny:
		switch v := value.Any().(type) {
		case error:
			return v.Error()
		case fmt.Stringer:
			return v.String()
		}
	}

	return value.Any()
}

func cloneFields(fields map[string]any, extra int) map[string]any {
	out := make(map[string]any, len(fields)+extra)
	maps.Copy(out, fields)
	return out
}
