package network

import (
	"sync"

	"github.com/jask/offlinesync/internal/pubsub"
)

// Manual is a Source driven by the host application, which forwards the
// platform's connectivity callbacks through Set. Tests use it to flip
// connectivity deterministically.
type Manual struct {
	mu      sync.Mutex
	current State
	broker  pubsub.Broker[State]
}

var _ Source = (*Manual)(nil)

// NewManual creates a Manual source starting at initial.
func NewManual(initial State) *Manual {
	return &Manual{current: initial}
}

// Set records s and notifies subscribers.
func (m *Manual) Set(s State) {
	m.mu.Lock()
	m.current = s
	// publish under the lock so concurrent Sets reach subscribers in order
	m.broker.Publish(s)
	m.mu.Unlock()
}

func (m *Manual) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manual) Subscribe(fn func(State)) func() {
	return m.broker.Subscribe(fn)
}
