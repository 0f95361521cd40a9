package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jask/offlinesync/internal/conflict"
	"github.com/jask/offlinesync/internal/network"
	"github.com/jask/offlinesync/internal/pubsub"
	"github.com/jask/offlinesync/internal/queue"
	"github.com/jask/offlinesync/internal/telemetry"
	"github.com/jask/offlinesync/internal/transport"
)

// Queue is the durable work list the coordinator drains.
type Queue interface {
	Enqueue(ctx context.Context, req queue.Request) (string, error)
	List(ctx context.Context) ([]queue.Item, error)
	Remove(ctx context.Context, id string) error
	Update(ctx context.Context, id string, patch queue.Patch) error
}

// Cache is the part of the cache store RefreshCache needs.
type Cache interface {
	ClearAll(ctx context.Context)
}

// Metadata persists the coordinator's singletons.
type Metadata interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// state is the single owned copy of the process-wide sync values.
type state struct {
	mu      sync.Mutex
	online  bool
	syncing bool
	status  Status
}

// Coordinator observes connectivity and drains the queue.
type Coordinator struct {
	queue    Queue
	cache    Cache
	meta     Metadata
	doer     transport.Doer
	source   network.Source
	strategy conflict.Strategy
	now      func() time.Time
	logger   *zap.Logger
	metrics  *telemetry.SyncMetrics

	state state

	networkSubs  pubsub.Broker[bool]
	statusSubs   pubsub.Broker[StatusEvent]
	refreshSubs  pubsub.Broker[time.Time]
	conflictSubs pubsub.Broker[ConflictEvent]

	observeMu sync.Mutex

	// lifecycle
	lifeMu      sync.Mutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	unsubSource func()
	wg          sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(m *telemetry.SyncMetrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithConflictStrategy sets how server conflicts on replayed items are resolved.
func WithConflictStrategy(s conflict.Strategy) Option {
	return func(c *Coordinator) {
		if s != "" {
			c.strategy = s
		}
	}
}

// New creates a Coordinator. It does nothing until Start is called, except
// serve explicit SyncAll calls, which require the device to be online.
func New(q Queue, cache Cache, meta Metadata, doer transport.Doer, source network.Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		queue:    q,
		cache:    cache,
		meta:     meta,
		doer:     doer,
		source:   source,
		strategy: conflict.DefaultStrategy,
		now:      time.Now,
		logger:   zap.NewNop(),
		state:    state{status: StatusIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.networkSubs.Logger = c.logger
	c.networkSubs.Name = "network"
	c.statusSubs.Logger = c.logger
	c.statusSubs.Name = "sync-status"
	c.refreshSubs.Logger = c.logger
	c.refreshSubs.Name = "cache-refresh"
	c.conflictSubs.Logger = c.logger
	c.conflictSubs.Name = "conflict"
	return c
}

// Start subscribes to the connectivity source and applies its current state.
// If the device is already online this triggers the first drain.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	if c.started {
		c.lifeMu.Unlock()
		return fmt.Errorf("coordinator already started")
	}
	if c.source == nil {
		c.lifeMu.Unlock()
		return fmt.Errorf("coordinator: no connectivity source")
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	// the delivered value may be stale or dropped under a burst; always
	// act on the source's latest state
	c.unsubSource = c.source.Subscribe(func(network.State) {
		c.observeNetwork(runCtx)
	})
	c.lifeMu.Unlock()

	c.logger.Info("sync coordinator started")
	c.observeNetwork(runCtx)
	return nil
}

// Stop unsubscribes from connectivity and waits for triggered drains to finish.
func (c *Coordinator) Stop() {
	c.lifeMu.Lock()
	if c.stopped {
		c.lifeMu.Unlock()
		return
	}
	c.stopped = true
	if c.unsubSource != nil {
		c.unsubSource()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.lifeMu.Unlock()

	c.wg.Wait()
	c.networkSubs.Close()
	c.statusSubs.Close()
	c.refreshSubs.Close()
	c.conflictSubs.Close()
	c.logger.Info("sync coordinator stopped")
}

// observeNetwork reads the source's current state and applies it. Calls are
// serialized so the last one to run always leaves the latest state behind.
func (c *Coordinator) observeNetwork(ctx context.Context) {
	c.observeMu.Lock()
	defer c.observeMu.Unlock()

	s := c.source.Current()
	online := s.Online()

	c.state.mu.Lock()
	was := c.state.online
	c.state.online = online
	c.networkSubs.Publish(online)
	c.state.mu.Unlock()

	c.persistFlag(ctx, OfflineModeKey, !online)
	if was != online {
		c.logger.Info("network state changed",
			zap.Bool("online", online),
			zap.Bool("reachable", s.Reachable),
			zap.Bool("has_internet", s.HasInternet))
	}
	if online && !was {
		c.triggerSync(ctx, "reconnect")
	}
}

// triggerSync starts a drain in the background.
func (c *Coordinator) triggerSync(ctx context.Context, reason string) {
	c.lifeMu.Lock()
	if c.stopped {
		c.lifeMu.Unlock()
		return
	}
	c.wg.Add(1)
	c.lifeMu.Unlock()

	go func() {
		defer c.wg.Done()
		res, err := c.SyncAll(ctx)
		if err != nil {
			c.logger.Warn("background sync failed", zap.String("trigger", reason), zap.Error(err))
			return
		}
		c.logger.Debug("background sync done",
			zap.String("trigger", reason),
			zap.Int("succeeded", res.Succeeded),
			zap.Int("failed", res.Failed))
	}()
}

// Enqueue records a mutation and, when online, starts a drain for it.
func (c *Coordinator) Enqueue(ctx context.Context, req queue.Request) (string, error) {
	id, err := c.queue.Enqueue(ctx, req)
	if err != nil {
		return "", err
	}
	if c.IsOnline() {
		c.triggerSync(context.WithoutCancel(ctx), "enqueue")
	}
	return id, nil
}

// IsOnline reports the last observed connectivity.
func (c *Coordinator) IsOnline() bool {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.state.online
}

// GetSyncStatus returns queue length, last successful sync and current flags.
func (c *Coordinator) GetSyncStatus(ctx context.Context) (Info, error) {
	c.state.mu.Lock()
	info := Info{
		IsOnline:  c.state.online,
		IsSyncing: c.state.syncing,
		Status:    c.state.status,
	}
	c.state.mu.Unlock()

	items, err := c.queue.List(ctx)
	if err != nil {
		return info, fmt.Errorf("read queue: %w", err)
	}
	info.QueueLength = len(items)

	if raw, ok, err := c.meta.Get(ctx, LastSyncAtKey); err != nil {
		return info, fmt.Errorf("read %s: %w", LastSyncAtKey, err)
	} else if ok {
		if err := json.Unmarshal(raw, &info.LastSyncAt); err != nil {
			c.logger.Warn("ignoring corrupt last sync time", zap.Error(err))
		}
	}
	return info, nil
}

// RefreshCache clears every cache entry and tells OnCacheRefresh subscribers
// to refetch. The coordinator itself does not know how to refetch.
func (c *Coordinator) RefreshCache(ctx context.Context) {
	c.cache.ClearAll(ctx)
	c.refreshSubs.Publish(c.now())
}

// Resolve reconciles two versions with the configured strategy.
func (c *Coordinator) Resolve(local, server map[string]any) map[string]any {
	return conflict.Resolve(local, server, c.strategy)
}

// OnNetworkChange registers cb. It first receives the current online flag,
// then every observation.
func (c *Coordinator) OnNetworkChange(cb func(online bool)) (unsubscribe func()) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.networkSubs.SubscribeWith(cb, c.state.online)
}

// OnSyncStatusChange registers cb for status transitions. It is not called
// with the current status.
func (c *Coordinator) OnSyncStatusChange(cb func(StatusEvent)) (unsubscribe func()) {
	return c.statusSubs.Subscribe(cb)
}

// OnCacheRefresh registers cb, called after RefreshCache cleared the cache.
func (c *Coordinator) OnCacheRefresh(cb func(at time.Time)) (unsubscribe func()) {
	return c.refreshSubs.Subscribe(cb)
}

// OnConflict registers cb, called for every resolved server conflict.
func (c *Coordinator) OnConflict(cb func(ConflictEvent)) (unsubscribe func()) {
	return c.conflictSubs.Subscribe(cb)
}

func (c *Coordinator) persistFlag(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err == nil {
		err = c.meta.Set(ctx, key, data)
	}
	if err != nil {
		c.logger.Warn("persist sync metadata failed", zap.String("key", key), zap.Error(err))
	}
}
