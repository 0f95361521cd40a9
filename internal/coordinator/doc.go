// Package coordinator drives the sync queue against the network.
//
// # Overview
//
// The Coordinator owns the process-wide sync state: whether the device is
// online, whether a drain is running, and the current Status. It is the only
// component that drains the queue and the only one that decides when conflict
// resolution runs on a server response.
//
// # State machine
//
//	idle ──trigger──> syncing ──> success ──> idle
//	                         └──> error   ──> idle
//
// Triggers are a connectivity transition from offline to online, an explicit
// SyncAll, or an Enqueue while online. A trigger that arrives while a drain is
// running, or while offline, is a no-op that returns an empty Result; it is
// not remembered, so callers re-trigger if they need another pass.
//
// # Drain
//
// A drain reads the whole queue once, orders it by priority then enqueue time,
// and replays items strictly one at a time. Each item moves through
//
//	pending -> succeeded | retrying | dropped
//
// Succeeded items are removed. A failure increments retryCount; an item that
// reaches maxRetries is removed and reported in Result.Errors, otherwise the
// new count is persisted and the item waits for the next drain. A drain always
// finishes its batch: neither connectivity loss nor cancellation of the
// caller's context stops it, individual calls simply fail and are retried
// later. Failing to read or rewrite the queue ends the drain in the error
// state without clearing anything.
//
// # Subscriptions
//
// OnNetworkChange, OnSyncStatusChange, OnCacheRefresh and OnConflict register
// callbacks and return an unsubscribe handle. Delivery is asynchronous and
// ordered per subscriber; a slow callback never blocks the Coordinator.
package coordinator
