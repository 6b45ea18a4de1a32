// Package network tracks whether the remote walk store is reachable and
// notifies subscribers when that changes.
package network

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/logging"
)

// Observer reports connectivity and connectivity transitions.
type Observer interface {
	IsConnected() bool

	// Subscribe registers fn for transitions. The returned func removes it
	// and is safe to call more than once.
	Subscribe(fn func(connected bool)) (unsubscribe func())
}

// Monitor is an Observer whose state is pushed in with Set, by a Prober or
// by the host platform's reachability callbacks.
type Monitor struct {
	mu        sync.Mutex
	connected bool
	nextID    int
	subs      map[int]func(bool)
	log       *zap.Logger
}

// NewMonitor creates a Monitor with the given initial state.
func NewMonitor(connected bool) *Monitor {
	return &Monitor{
		connected: connected,
		subs:      make(map[int]func(bool)),
		log:       logging.Named("network"),
	}
}

// IsConnected implements Observer.
func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Subscribe implements Observer.
func (m *Monitor) Subscribe(fn func(connected bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Set records the current state. Subscribers are called synchronously, in
// no particular order, and only when the state actually changed.
func (m *Monitor) Set(connected bool) {
	m.mu.Lock()
	if m.connected == connected {
		m.mu.Unlock()
		return
	}
	m.connected = connected
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.log.Info("connectivity changed", zap.Bool("connected", connected))
	for _, fn := range subs {
		fn(connected)
	}
}

// Subscribers returns the number of registered subscribers.
func (m *Monitor) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
