package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidMethod   = errors.New("queue: invalid method")
	ErrInvalidPriority = errors.New("queue: invalid priority")
	ErrInvalidRequest  = errors.New("queue: invalid request")
)

// Method is the HTTP verb replayed for an item.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodPatch  Method = http.MethodPatch
	MethodDelete Method = http.MethodDelete
)

// ParseMethod normalizes s and rejects verbs the queue does not replay.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
}

// Priority orders items inside a drain.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority normalizes s. An empty string is medium.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return PriorityMedium, nil
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

// Rank is the sort key: high=0, medium=1, low=2.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Item is one pending mutation awaiting replay.
type Item struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	Endpoint   string          `json:"endpoint"`
	Method     Method          `json:"method"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	RetryCount int             `json:"retryCount"`
	MaxRetries int             `json:"maxRetries"`
	Priority   Priority        `json:"priority"`
}

// Exhausted reports whether the item has used up its retries.
func (it Item) Exhausted() bool {
	return it.RetryCount >= it.MaxRetries
}

// SortForReplay orders items by priority rank, then by enqueue time. Items
// with equal keys keep their storage (insertion) order.
func SortForReplay(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Priority.Rank(), items[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
	})
}

// Request describes a new item. Zero Priority means medium, zero MaxRetries
// means the queue default.
type Request struct {
	Action     string
	Endpoint   string
	Method     Method
	Payload    any
	Priority   Priority
	MaxRetries int
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	RetryCount *int
	Payload    json.RawMessage
}
