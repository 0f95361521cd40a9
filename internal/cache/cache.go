package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/jask/offlinesync/internal/database/repository"
)

// KeyPrefix namespaces cache keys inside the shared kv store.
const KeyPrefix = "cache:"

// DefaultSchemaVersion is used when no version is configured.
const DefaultSchemaVersion = "1"

// Storage is the durable backend the cache writes to.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	List(ctx context.Context, prefix string) ([]repository.Entry, error)
}

// Entry is the envelope persisted for every key.
type Entry struct {
	Payload       json.RawMessage `json:"payload"`
	CachedAt      time.Time       `json:"cachedAt"`
	SchemaVersion string          `json:"schemaVersion"`
}

// ItemStats describes one stored entry.
type ItemStats struct {
	Key       string
	SizeBytes int
	Age       time.Duration
}

// Stats is a diagnostic view of the cache namespace.
type Stats struct {
	ItemCount      int
	TotalSizeBytes int
	Items          []ItemStats
}

// Store is the persistent cache.
type Store struct {
	storage       Storage
	schemaVersion string
	now           func() time.Time
	logger        *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSchemaVersion sets the version stamped on new entries and required of stored ones.
func WithSchemaVersion(v string) Option {
	return func(s *Store) {
		if v = strings.TrimSpace(v); v != "" {
			s.schemaVersion = v
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for swallowed storage failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store over storage.
func New(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage:       storage,
		schemaVersion: DefaultSchemaVersion,
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SchemaVersion returns the version this store reads and writes.
func (s *Store) SchemaVersion() string { return s.schemaVersion }

// Save stores payload under key, replacing any previous entry. Failures are
// logged and dropped.
func (s *Store) Save(ctx context.Context, key string, payload any) {
	if strings.TrimSpace(key) == "" {
		s.logger.Warn("cache save skipped: empty key")
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("cache save failed: encode payload", zap.String("key", key), zap.Error(err))
		return
	}
	data, err := json.Marshal(Entry{
		Payload:       raw,
		CachedAt:      s.now().UTC(),
		SchemaVersion: s.schemaVersion,
	})
	if err != nil {
		s.logger.Warn("cache save failed: encode entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.storage.Set(ctx, KeyPrefix+key, data); err != nil {
		s.logger.Warn("cache save failed", zap.String("key", key), zap.Error(err))
	}
}

// Get returns the payload stored under key. An entry older than maxAge is
// purged and reported absent; maxAge <= 0 disables the age check.
func (s *Store) Get(ctx context.Context, key string, maxAge time.Duration) (json.RawMessage, bool) {
	if strings.TrimSpace(key) == "" {
		return nil, false
	}
	data, ok, err := s.storage.Get(ctx, KeyPrefix+key)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("cache entry corrupt, purging", zap.String("key", key), zap.Error(err))
		s.Remove(ctx, key)
		return nil, false
	}
	if entry.SchemaVersion != s.schemaVersion {
		s.logger.Debug("cache entry schema mismatch, purging",
			zap.String("key", key),
			zap.String("stored", entry.SchemaVersion),
			zap.String("want", s.schemaVersion))
		s.Remove(ctx, key)
		return nil, false
	}
	if maxAge > 0 && s.now().Sub(entry.CachedAt) > maxAge {
		s.logger.Debug("cache entry expired, purging", zap.String("key", key), zap.Duration("max_age", maxAge))
		s.Remove(ctx, key)
		return nil, false
	}
	return entry.Payload, true
}

// Remove deletes one entry.
func (s *Store) Remove(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, KeyPrefix+key); err != nil {
		s.logger.Warn("cache remove failed", zap.String("key", key), zap.Error(err))
	}
}

// ClearAll deletes every cache entry and nothing outside the cache namespace.
func (s *Store) ClearAll(ctx context.Context) {
	n, err := s.storage.DeletePrefix(ctx, KeyPrefix)
	if err != nil {
		s.logger.Warn("cache clear failed", zap.Error(err))
		return
	}
	s.logger.Debug("cache cleared", zap.Int64("entries", n))
}

// Stats reports entry count, approximate sizes and ages. Sizes are the
// serialized envelope length.
func (s *Store) Stats(ctx context.Context) Stats {
	entries, err := s.storage.List(ctx, KeyPrefix)
	if err != nil {
		s.logger.Warn("cache stats failed", zap.Error(err))
		return Stats{}
	}

	now := s.now()
	out := Stats{Items: make([]ItemStats, 0, len(entries))}
	for _, e := range entries {
		item := ItemStats{
			Key:       strings.TrimPrefix(e.Key, KeyPrefix),
			SizeBytes: len(e.Value),
		}
		if cachedAt := gjson.GetBytes(e.Value, "cachedAt"); cachedAt.Exists() {
			item.Age = now.Sub(cachedAt.Time())
		}
		out.ItemCount++
		out.TotalSizeBytes += item.SizeBytes
		out.Items = append(out.Items, item)
	}
	return out
}
