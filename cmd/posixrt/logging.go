package main

import (
	"context"
	"log/slog"
	"sync"
)

// SlogManager fans records out to a set of named handlers, so handlers
// (the terminal, a log file) can be attached and detached at runtime.
type SlogManager struct {
	sync.RWMutex
	handlers map[string]slog.Handler
	attrs    []slog.Attr
	groups   []string
}

func NewSlogManager() *SlogManager {
	return &SlogManager{
		handlers: make(map[string]slog.Handler),
	}
}

func (m *SlogManager) Enabled(ctx context.Context, level slog.Level) bool {
	m.RLock()
	defer m.RUnlock()

	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

// Handle passes r to every handler enabled for its level. Handler errors
// are dropped, one failing sink must not silence the others.
func (m *SlogManager) Handle(ctx context.Context, r slog.Record) error {
	m.RLock()
	defer m.RUnlock()

	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}

	return nil
}

func (m *SlogManager) derive(attrs []slog.Attr, group string) *SlogManager {
	m.RLock()
	defer m.RUnlock()

	derived := &SlogManager{
		handlers: make(map[string]slog.Handler, len(m.handlers)),
		attrs:    append(append([]slog.Attr{}, m.attrs...), attrs...),
		groups:   append([]string{}, m.groups...),
	}

	if group != "" {
		derived.groups = append(derived.groups, group)
	}

	for name, h := range m.handlers {
		if len(attrs) > 0 {
			h = h.WithAttrs(attrs)
		}

		if group != "" {
			h = h.WithGroup(group)
		}

		derived.handlers[name] = h
	}

	return derived
}

func (m *SlogManager) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.derive(attrs, "")
}

func (m *SlogManager) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}

	return m.derive(nil, name)
}

// AddHandler attaches handler under name, replacing any handler of that
// name. Attributes and groups added so far are applied to it.
func (m *SlogManager) AddHandler(name string, handler slog.Handler) {
	m.Lock()
	defer m.Unlock()

	h := handler
	if len(m.attrs) > 0 {
		h = h.WithAttrs(m.attrs)
	}

	for _, group := range m.groups {
		h = h.WithGroup(group)
	}

	m.handlers[name] = h
}

func (m *SlogManager) RemoveHandler(name string) {
	m.Lock()
	defer m.Unlock()

	delete(m.handlers, name)
}
