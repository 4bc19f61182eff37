// Package hooks dispatches session and gateway lifecycle events to
// in-process handlers and configured shell commands.
package hooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/promptsmith/internal/logging"
)

// Event names for the hook system.
const (
	EventSessionStart       = "session_start"
	EventSessionEnd         = "session_end"
	EventPromptGenerated    = "prompt_generated"
	EventEvaluationComplete = "evaluation_complete"
	EventGatewayStart       = "gateway_start"
	EventGatewayStop        = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventSessionStart,
	EventSessionEnd,
	EventPromptGenerated,
	EventEvaluationComplete,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event     string         `json:"event"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler handles a hook event. A returned error is logged and does not
// stop the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

type namedHandler struct {
	name    string
	handler Handler
}

// Manager holds hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	inflight sync.WaitGroup
	log      *logging.Logger
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for event under name.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes every handler registered for event under name.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.handlers[event][:0:0]
	for _, h := range m.handlers[event] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	m.handlers[event] = kept
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]namedHandler(nil), m.handlers[event]...)
}

func newPayload(event, sessionID string, data map[string]any) Payload {
	return Payload{Event: event, SessionID: sessionID, Timestamp: time.Now().UTC(), Data: data}
}

// Emit runs the handlers for event in registration order and returns when
// all have finished.
func (m *Manager) Emit(ctx context.Context, event, sessionID string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := newPayload(event, sessionID, data)
	for _, h := range handlers {
		m.call(ctx, h, p)
	}
}

// EmitAsync runs the handlers for event on their own goroutines. Use Wait
// to block until they finish.
func (m *Manager) EmitAsync(ctx context.Context, event, sessionID string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := newPayload(event, sessionID, data)
	for _, h := range handlers {
		m.inflight.Add(1)
		go func(h namedHandler) {
			defer m.inflight.Done()
			m.call(ctx, h, p)
		}(h)
	}
}

// Wait blocks until every EmitAsync handler has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Str("sessionId", p.SessionID).
			Msg("hook handler error")
	}
}

// Count returns the number of handlers registered for event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns, sorted, the events with at least one handler.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	sort.Strings(events)
	return events
}
