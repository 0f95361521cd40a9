package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jask/offlinesync/internal/conflict"
	"github.com/jask/offlinesync/internal/queue"
	"github.com/jask/offlinesync/internal/telemetry"
	"github.com/jask/offlinesync/internal/transport"
)

// itemState is where one replayed item ends up after a drain.
type itemState int

const (
	itemSucceeded itemState = iota
	itemRetrying
	itemDropped
)

func (s itemState) String() string {
	switch s {
	case itemSucceeded:
		return telemetry.OutcomeSucceeded
	case itemRetrying:
		return telemetry.OutcomeRetrying
	case itemDropped:
		return telemetry.OutcomeDropped
	default:
		return "unknown"
	}
}

// nextState applies one replay outcome to item. A failure bumps the retry
// count and drops the item once it is exhausted.
func nextState(item queue.Item, replayErr error) (itemState, queue.Item) {
	if replayErr == nil {
		return itemSucceeded, item
	}
	item.RetryCount++
	if item.Exhausted() {
		return itemDropped, item
	}
	return itemRetrying, item
}

// SyncAll drains the queue once. It returns an empty Result without touching
// the queue when the device is offline or another drain is in flight. The
// returned error is set only for failures outside per-item retry handling,
// such as an unreadable queue.
func (c *Coordinator) SyncAll(ctx context.Context) (Result, error) {
	if !c.begin() {
		return Result{}, nil
	}
	// drains run to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	start := c.now()
	res, err := c.drain(ctx)
	elapsed := c.now().Sub(start)
	c.metrics.RecordDrain(ctx, elapsed, err == nil)

	if err != nil {
		c.logger.Error("sync drain failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		c.finish(StatusEvent{Status: StatusError, Result: res, Err: err, At: c.now()})
		return res, err
	}

	c.persistFlag(ctx, LastSyncAtKey, c.now().UTC())
	c.logger.Info("sync drain complete",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", elapsed))
	c.finish(StatusEvent{Status: StatusSuccess, Result: res, At: c.now()})
	return res, nil
}

// begin claims the single drain slot.
func (c *Coordinator) begin() bool {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if c.state.syncing || !c.state.online {
		return false
	}
	c.state.syncing = true
	c.state.status = StatusSyncing
	c.statusSubs.Publish(StatusEvent{Status: StatusSyncing, At: c.now()})
	return true
}

// finish publishes the terminal event, then settles back to idle.
func (c *Coordinator) finish(ev StatusEvent) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	c.state.status = ev.Status
	c.statusSubs.Publish(ev)
	c.state.syncing = false
	c.state.status = StatusIdle
	c.statusSubs.Publish(StatusEvent{Status: StatusIdle, At: c.now()})
}

func (c *Coordinator) drain(ctx context.Context) (Result, error) {
	var res Result

	items, err := c.queue.List(ctx)
	if err != nil {
		return res, fmt.Errorf("read queue: %w", err)
	}
	queue.SortForReplay(items)
	c.logger.Debug("draining sync queue", zap.Int("items", len(items)))

	remaining := len(items)
	for _, item := range items {
		original := item.Payload
		replayErr := c.replay(ctx, &item)
		outcome, next := nextState(item, replayErr)
		c.metrics.RecordItem(ctx, outcome.String(), string(item.Priority))

		switch outcome {
		case itemSucceeded:
			if err := c.queue.Remove(ctx, item.ID); err != nil {
				return res, fmt.Errorf("remove item %s: %w", item.ID, err)
			}
			res.Succeeded++
			remaining--
		case itemDropped:
			if err := c.queue.Remove(ctx, item.ID); err != nil {
				return res, fmt.Errorf("remove item %s: %w", item.ID, err)
			}
			res.Failed++
			res.Errors = append(res.Errors, ItemError{
				ItemID:  item.ID,
				Action:  item.Action,
				Message: replayErr.Error(),
			})
			remaining--
			c.logger.Warn("dropping sync item after exhausting retries",
				zap.String("id", item.ID),
				zap.String("action", item.Action),
				zap.Int("retries", next.RetryCount),
				zap.Error(replayErr))
		case itemRetrying:
			retries := next.RetryCount
			patch := queue.Patch{RetryCount: &retries}
			if !jsonEqual(next.Payload, original) {
				patch.Payload = next.Payload
			}
			if err := c.queue.Update(ctx, item.ID, patch); err != nil {
				return res, fmt.Errorf("update item %s: %w", item.ID, err)
			}
			c.logger.Debug("sync item failed, will retry",
				zap.String("id", item.ID),
				zap.Int("retry_count", retries),
				zap.Int("max_retries", item.MaxRetries),
				zap.Error(replayErr))
		}
	}
	c.metrics.RecordQueueLength(ctx, remaining)
	return res, nil
}

// replay sends one item. A server conflict is resolved in place: under the
// server strategy the server copy wins and the item counts as delivered,
// otherwise the item's payload becomes the resolved version and the failure
// stands so it is retried.
func (c *Coordinator) replay(ctx context.Context, item *queue.Item) error {
	err := c.doer.Do(ctx, transport.Request{
		Method:   string(item.Method),
		Endpoint: item.Endpoint,
		Payload:  item.Payload,
	})
	if err == nil {
		return nil
	}
	ce, ok := transport.IsConflict(err)
	if !ok {
		return err
	}

	local := decodeObject(item.Payload)
	server := decodeObject(ce.Server)
	resolved := conflict.Resolve(local, server, c.strategy)
	c.conflictSubs.Publish(ConflictEvent{
		Item:     *item,
		Server:   json.RawMessage(ce.Server),
		Resolved: resolved,
		Strategy: c.strategy,
	})
	c.logger.Info("resolved sync conflict",
		zap.String("id", item.ID),
		zap.String("strategy", string(c.strategy)))

	if c.strategy == conflict.Server {
		return nil
	}
	if data, mErr := json.Marshal(resolved); mErr == nil {
		item.Payload = data
	}
	return err
}

func decodeObject(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func jsonEqual(a, b json.RawMessage) bool {
	return string(a) == string(b)
}

// compile-time check that the sqlite-backed queue satisfies Queue
var _ Queue = (*queue.Queue)(nil)
