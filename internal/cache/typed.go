package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Put is Save with a typed payload.
func Put[T any](ctx context.Context, s *Store, key string, payload T) {
	s.Save(ctx, key, payload)
}

// Load reads key and decodes its payload into T. A payload that no longer
// decodes into T is treated as a miss.
func Load[T any](ctx context.Context, s *Store, key string, maxAge time.Duration) (T, bool) {
	var out T
	raw, ok := s.Get(ctx, key, maxAge)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, false
	}
	return out, true
}
