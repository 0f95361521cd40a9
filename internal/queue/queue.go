package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageKey is the singleton key holding the whole queue.
const StorageKey = "sync:queue"

// DefaultMaxRetries applies when a request does not set MaxRetries.
const DefaultMaxRetries = 3

// Storage persists the queue. Update must be all-or-nothing: when fn fails
// nothing is written, and a nil value deletes the key.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Update(ctx context.Context, key string, fn func(old []byte, ok bool) ([]byte, error)) error
	Delete(ctx context.Context, key string) error
}

// Queue is the durable, ordered record of work not yet confirmed by the server.
// The whole queue is one value, so every mutation rewrites it atomically.
type Queue struct {
	storage    Storage
	maxRetries int
	now        func() time.Time
	newID      func() string
	logger     *zap.Logger

	// serializes read-modify-write cycles from this process
	mu sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithDefaultMaxRetries sets the retry budget for requests that leave it zero.
func WithDefaultMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithIDGenerator overrides uuid-based ids.
func WithIDGenerator(fn func() string) Option {
	return func(q *Queue) { q.newID = fn }
}

// WithLogger sets the queue logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates a Queue over storage.
func New(storage Storage, opts ...Option) *Queue {
	q := &Queue{
		storage:    storage,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a new item and returns its id. The item is visible to the
// next List call.
func (q *Queue) Enqueue(ctx context.Context, req Request) (string, error) {
	item, err := q.newItem(req)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err = q.mutate(ctx, func(items []Item) ([]Item, error) {
		return append(items, item), nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", item.Action, err)
	}
	q.logger.Debug("queued item",
		zap.String("id", item.ID),
		zap.String("action", item.Action),
		zap.String("method", string(item.Method)),
		zap.String("endpoint", item.Endpoint),
		zap.String("priority", string(item.Priority)))
	return item.ID, nil
}

func (q *Queue) newItem(req Request) (Item, error) {
	method, err := ParseMethod(string(req.Method))
	if err != nil {
		return Item{}, err
	}
	priority, err := ParsePriority(string(req.Priority))
	if err != nil {
		return Item{}, err
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		return Item{}, fmt.Errorf("%w: endpoint required", ErrInvalidRequest)
	}
	if req.MaxRetries < 0 {
		return Item{}, fmt.Errorf("%w: max retries must be positive", ErrInvalidRequest)
	}
	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = q.maxRetries
	}

	var payload json.RawMessage
	if req.Payload != nil {
		payload, err = json.Marshal(req.Payload)
		if err != nil {
			return Item{}, fmt.Errorf("%w: encode payload: %v", ErrInvalidRequest, err)
		}
	}

	return Item{
		ID:         q.newID(),
		Action:     strings.TrimSpace(req.Action),
		Endpoint:   strings.TrimSpace(req.Endpoint),
		Method:     method,
		Payload:    payload,
		EnqueuedAt: q.now().UTC(),
		MaxRetries: maxRetries,
		Priority:   priority,
	}, nil
}

// List returns the full queue in storage order.
func (q *Queue) List(ctx context.Context) ([]Item, error) {
	data, ok, err := q.storage.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return decode(data)
}

// Len returns the number of queued items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	items, err := q.List(ctx)
	return len(items), err
}

// Remove deletes one item. Unknown ids are ignored.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.mutate(ctx, func(items []Item) ([]Item, error) {
		out := items[:0]
		for _, it := range items {
			if it.ID != id {
				out = append(out, it)
			}
		}
		return out, nil
	})
}

// Update applies patch to one item. Unknown ids are ignored.
func (q *Queue) Update(ctx context.Context, id string, patch Patch) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.mutate(ctx, func(items []Item) ([]Item, error) {
		for i := range items {
			if items[i].ID != id {
				continue
			}
			if patch.RetryCount != nil {
				items[i].RetryCount = *patch.RetryCount
			}
			if patch.Payload != nil {
				items[i].Payload = patch.Payload
			}
		}
		return items, nil
	})
}

// Clear deletes the entire queue.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.storage.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

func (q *Queue) mutate(ctx context.Context, fn func([]Item) ([]Item, error)) error {
	return q.storage.Update(ctx, StorageKey, func(old []byte, ok bool) ([]byte, error) {
		var items []Item
		if ok {
			var err error
			if items, err = decode(old); err != nil {
				return nil, err
			}
		}
		next, err := fn(items)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []Item{}
		}
		return json.Marshal(next)
	})
}

func decode(data []byte) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	return items, nil
}
