// Package pubsub is a small typed publish/subscribe broker.
//
// Each subscriber owns a buffered mailbox drained by its own goroutine, so
// Publish never blocks on a slow handler and every subscriber sees events in
// publish order. When a mailbox is full the event is dropped for that
// subscriber only.
package pubsub

import (
	"sync"

	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscriber mailbox size.
const DefaultBuffer = 64

// Broker fans values of T out to subscribers. The zero value is ready to use.
type Broker[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber[T]
	nextID uint64
	closed bool

	// Buffer overrides DefaultBuffer when set before the first Subscribe.
	Buffer int
	// Logger receives drop warnings. Nil means no logging.
	Logger *zap.Logger
	// Name labels log lines.
	Name string
}

type subscriber[T any] struct {
	ch   chan T
	done chan struct{}
	once sync.Once
}

// Subscribe registers fn and returns a handle that removes it. The handle is
// safe to call more than once.
func (b *Broker[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	return b.subscribe(fn, nil)
}

// SubscribeWith registers fn and queues initial as the first value it receives.
func (b *Broker[T]) SubscribeWith(fn func(T), initial T) (unsubscribe func()) {
	return b.subscribe(fn, &initial)
}

func (b *Broker[T]) subscribe(fn func(T), initial *T) func() {
	size := b.Buffer
	if size <= 0 {
		size = DefaultBuffer
	}
	sub := &subscriber[T]{
		ch:   make(chan T, size),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	if b.subs == nil {
		b.subs = make(map[uint64]*subscriber[T])
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	if initial != nil {
		sub.ch <- *initial
	}
	b.mu.Unlock()

	go sub.run(fn)

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.stop()
	}
}

// Publish delivers v to every current subscriber without blocking.
func (b *Broker[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- v:
		default:
			if b.Logger != nil {
				b.Logger.Warn("subscriber mailbox full, dropping event", zap.String("broker", b.Name))
			}
		}
	}
}

// Len returns the number of subscribers.
func (b *Broker[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close removes every subscriber. Later Subscribe calls are no-ops.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (s *subscriber[T]) run(fn func(T)) {
	for {
		select {
		case <-s.done:
			return
		case v := <-s.ch:
			fn(v)
		}
	}
}

func (s *subscriber[T]) stop() {
	s.once.Do(func() { close(s.done) })
}
