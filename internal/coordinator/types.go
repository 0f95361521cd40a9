package coordinator

import (
	"encoding/json"
	"time"

	"github.com/jask/offlinesync/internal/conflict"
	"github.com/jask/offlinesync/internal/queue"
)

// Persisted metadata keys.
const (
	LastSyncAtKey  = "sync:lastSyncAt"
	OfflineModeKey = "sync:offlineMode"
)

// Status is the coordinator's sync state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ItemError reports an item dropped after exhausting its retries.
type ItemError struct {
	ItemID  string
	Action  string
	Message string
}

// Result summarizes one drain. It is never persisted.
type Result struct {
	Succeeded int
	Failed    int
	Errors    []ItemError
}

// StatusEvent is delivered to OnSyncStatusChange subscribers. Result is set
// for success and error, Err only for error.
type StatusEvent struct {
	Status Status
	Result Result
	Err    error
	At     time.Time
}

// Info is the snapshot returned by GetSyncStatus.
type Info struct {
	QueueLength int
	LastSyncAt  time.Time
	IsOnline    bool
	IsSyncing   bool
	Status      Status
}

// ConflictEvent is delivered to OnConflict subscribers when the server
// answered an item with a conflict and the coordinator resolved it.
type ConflictEvent struct {
	Item     queue.Item
	Server   json.RawMessage
	Resolved map[string]any
	Strategy conflict.Strategy
}
