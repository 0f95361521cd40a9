package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/offlinesync/internal/database"
	"github.com/jask/offlinesync/internal/database/repository"
)

func newTestQueue(t *testing.T, opts ...Option) (*Queue, *repository.KVRepo) {
	t.Helper()
	repo := repository.NewKVRepo(database.OpenTestDB(t))
	return New(repo, opts...), repo
}

func TestEnqueueDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	q, _ := newTestQueue(t, WithClock(func() time.Time { return now }))

	id, err := q.Enqueue(ctx, Request{
		Action:   "create-note",
		Endpoint: "/notes",
		Method:   "post",
		Payload:  map[string]any{"title": "hi"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	it := items[0]
	require.Equal(t, id, it.ID)
	require.Equal(t, "create-note", it.Action)
	require.Equal(t, "/notes", it.Endpoint)
	require.Equal(t, MethodPost, it.Method)
	require.JSONEq(t, `{"title":"hi"}`, string(it.Payload))
	require.Equal(t, PriorityMedium, it.Priority)
	require.Equal(t, DefaultMaxRetries, it.MaxRetries)
	require.Equal(t, 0, it.RetryCount)
	require.True(t, it.EnqueuedAt.Equal(now))
}

func TestEnqueueWithoutPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, _ := newTestQueue(t, WithDefaultMaxRetries(5))

	_, err := q.Enqueue(ctx, Request{Action: "delete", Endpoint: "/notes/1", Method: MethodDelete, Priority: PriorityHigh})
	require.NoError(t, err)

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Nil(t, items[0].Payload)
	require.Equal(t, 5, items[0].MaxRetries)
	require.Equal(t, PriorityHigh, items[0].Priority)
}

func TestEnqueueValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, _ := newTestQueue(t)

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"bad method", Request{Endpoint: "/x", Method: "HEAD"}, ErrInvalidMethod},
		{"missing method", Request{Endpoint: "/x"}, ErrInvalidMethod},
		{"bad priority", Request{Endpoint: "/x", Method: MethodPut, Priority: "urgent"}, ErrInvalidPriority},
		{"missing endpoint", Request{Method: MethodPut}, ErrInvalidRequest},
		{"negative retries", Request{Endpoint: "/x", Method: MethodPut, MaxRetries: -1}, ErrInvalidRequest},
		{"unencodable payload", Request{Endpoint: "/x", Method: MethodPut, Payload: func() {}}, ErrInvalidRequest},
	}
	for _, tc := range cases {
		_, err := q.Enqueue(ctx, tc.req)
		require.ErrorIs(t, err, tc.want, tc.name)
	}

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestListPreservesInsertionOrderAndUniqueIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, _ := newTestQueue(t)

	const n = 25
	ids := make(map[string]struct{}, n)
	var order []string
	for i := 0; i < n; i++ {
		id, err := q.Enqueue(ctx, Request{Action: fmt.Sprintf("a%d", i), Endpoint: "/x", Method: MethodPost})
		require.NoError(t, err)
		ids[id] = struct{}{}
		order = append(order, id)
	}
	require.Len(t, ids, n, "ids must not collide")

	require.NoError(t, q.Remove(ctx, order[3]))
	require.NoError(t, q.Remove(ctx, order[10]))
	require.NoError(t, q.Remove(ctx, "unknown"))

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, n-2)

	var got []string
	for _, it := range items {
		got = append(got, it.ID)
	}
	want := append(append([]string{}, order[:3]...), order[4:10]...)
	want = append(want, order[11:]...)
	require.Equal(t, want, got)

	length, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, n-2, length)
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, _ := newTestQueue(t)

	id, err := q.Enqueue(ctx, Request{Endpoint: "/x", Method: MethodPatch, Payload: map[string]int{"a": 1}})
	require.NoError(t, err)

	two := 2
	require.NoError(t, q.Update(ctx, id, Patch{RetryCount: &two}))
	require.NoError(t, q.Update(ctx, "unknown", Patch{RetryCount: &two}))

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].RetryCount)
	require.JSONEq(t, `{"a":1}`, string(items[0].Payload))

	require.NoError(t, q.Update(ctx, id, Patch{Payload: json.RawMessage(`{"a":2}`)}))
	items, err = q.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, items[0].RetryCount)
	require.JSONEq(t, `{"a":2}`, string(items[0].Payload))
}

func TestClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, repo := newTestQueue(t)
	require.NoError(t, repo.Set(ctx, "cache:keep", []byte("{}")))

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, Request{Endpoint: "/x", Method: MethodPost})
		require.NoError(t, err)
	}
	require.NoError(t, q.Clear(ctx))

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Empty(t, items)

	_, ok, err := repo.Get(ctx, "cache:keep")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestQueueSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewKVRepo(database.OpenTestDB(t))

	id, err := New(repo).Enqueue(ctx, Request{Endpoint: "/x", Method: MethodPut})
	require.NoError(t, err)

	items, err := New(repo).List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, id, items[0].ID)
}

func TestCorruptQueueIsNotOverwritten(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, repo := newTestQueue(t)
	require.NoError(t, repo.Set(ctx, StorageKey, []byte("{broken")))

	_, err := q.List(ctx)
	require.Error(t, err)

	_, err = q.Enqueue(ctx, Request{Endpoint: "/x", Method: MethodPost})
	require.Error(t, err)

	raw, _, err := repo.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.Equal(t, "{broken", string(raw))
}

type failingStorage struct{ err error }

func (f failingStorage) Get(context.Context, string) ([]byte, bool, error) { return nil, false, f.err }
func (f failingStorage) Update(context.Context, string, func([]byte, bool) ([]byte, error)) error {
	return f.err
}
func (f failingStorage) Delete(context.Context, string) error { return f.err }

func TestStorageErrorsSurface(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("io error")
	q := New(failingStorage{err: boom})

	_, err := q.Enqueue(ctx, Request{Endpoint: "/x", Method: MethodPost})
	require.ErrorIs(t, err, boom)
	_, err = q.List(ctx)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, q.Remove(ctx, "x"), boom)
	require.ErrorIs(t, q.Clear(ctx), boom)
}

func TestSortForReplay(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []Item{
		{ID: "low-1", Priority: PriorityLow, EnqueuedAt: base},
		{ID: "med-2", Priority: PriorityMedium, EnqueuedAt: base.Add(2 * time.Second)},
		{ID: "high-2", Priority: PriorityHigh, EnqueuedAt: base.Add(3 * time.Second)},
		{ID: "med-1", Priority: PriorityMedium, EnqueuedAt: base.Add(time.Second)},
		{ID: "high-1", Priority: PriorityHigh, EnqueuedAt: base.Add(time.Second)},
		{ID: "med-tie", Priority: PriorityMedium, EnqueuedAt: base.Add(2 * time.Second)},
	}
	SortForReplay(items)

	var got []string
	for _, it := range items {
		got = append(got, it.ID)
	}
	assert.Equal(t, []string{"high-1", "high-2", "med-1", "med-2", "med-tie", "low-1"}, got)
}

func TestParsePriorityAndRank(t *testing.T) {
	t.Parallel()

	p, err := ParsePriority("")
	require.NoError(t, err)
	require.Equal(t, PriorityMedium, p)

	p, err = ParsePriority(" HIGH ")
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, p)

	require.Equal(t, 0, PriorityHigh.Rank())
	require.Equal(t, 1, PriorityMedium.Rank())
	require.Equal(t, 2, PriorityLow.Rank())
}
