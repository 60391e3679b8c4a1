package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"franchisor-portal/internal/infrastructure/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID       uuid.UUID
	MarketID uuid.UUID
	Name     string
}

// rowStore is a fake backend: fetch reads the committed rows at call time and
// can be made to stall before returning.
type rowStore struct {
	mu     sync.Mutex
	rows   []row
	calls  atomic.Int32
	stall  map[int32]chan struct{}
	failOn map[int32]bool
	fail   atomic.Bool
}

func newRowStore(rows ...row) *rowStore {
	return &rowStore{rows: rows, stall: map[int32]chan struct{}{}, failOn: map[int32]bool{}}
}

func (s *rowStore) set(rows ...row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

func (s *rowStore) stallCall(n int32) chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	s.stall[n] = ch
	s.mu.Unlock()
	return ch
}

func (s *rowStore) failCall(n int32) {
	s.mu.Lock()
	s.failOn[n] = true
	s.mu.Unlock()
}

func (s *rowStore) fetch(ctx context.Context, marketID uuid.UUID) ([]row, error) {
	n := s.calls.Add(1)
	s.mu.Lock()
	var out []row
	for _, r := range s.rows {
		if r.MarketID == marketID {
			out = append(out, r)
		}
	}
	gate := s.stall[n]
	failing := s.failOn[n]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if failing || s.fail.Load() {
		return nil, errors.New("backend unavailable")
	}
	return out, nil
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot[row]
}

func (r *recorder) onChange(s Snapshot[row]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func newTestView(hub *Hub, store *rowStore, debounce time.Duration, rec *recorder, m *metrics.Collectors) *LiveView[row] {
	opts := Options[row]{
		Subscriber: hub,
		Table:      "properties",
		Column:     "market_id",
		Fetch:      store.fetch,
		ID:         func(r row) uuid.UUID { return r.ID },
		Debounce:   debounce,
		Log:        zerolog.Nop(),
		Metrics:    m,
	}
	if rec != nil {
		opts.OnChange = rec.onChange
	}
	return NewLiveView(opts)
}

func names(rows []row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func TestLiveView_MountLoadsScopedList(t *testing.T) {
	m1, m2 := uuid.New(), uuid.New()
	store := newRowStore(row{uuid.New(), m1, "a"}, row{uuid.New(), m2, "other"})
	hub := NewHub()
	v := newTestView(hub, store, 0, nil, nil)

	require.NoError(t, v.Mount(context.Background(), m1))
	defer v.Unmount()

	assert.Equal(t, []string{"a"}, names(v.Items()))
	assert.Equal(t, 1, hub.Subscribers(marketFilter(m1)))
	assert.True(t, v.Mounted())
}

func TestLiveView_RefetchOnEveryMutationKind(t *testing.T) {
	m := uuid.New()
	a := row{uuid.New(), m, "a"}
	store := newRowStore(a)
	hub := NewHub()
	v := newTestView(hub, store, 0, nil, nil)
	require.NoError(t, v.Mount(context.Background(), m))
	defer v.Unmount()

	b := row{uuid.New(), m, "b"}
	store.set(a, b)
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{Type: EventInsert}))
	require.Eventually(t, func() bool { return len(v.Items()) == 2 }, time.Second, 5*time.Millisecond)

	b.Name = "b2"
	store.set(a, b)
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{Type: EventUpdate}))
	require.Eventually(t, func() bool { return assert.ObjectsAreEqual([]string{"a", "b2"}, names(v.Items())) }, time.Second, 5*time.Millisecond)

	store.set(b)
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{Type: EventDelete}))
	require.Eventually(t, func() bool { return assert.ObjectsAreEqual([]string{"b2"}, names(v.Items())) }, time.Second, 5*time.Millisecond)
}

func TestLiveView_DeleteOfSelectedClearsSelection(t *testing.T) {
	m := uuid.New()
	a, b := row{uuid.New(), m, "a"}, row{uuid.New(), m, "b"}
	store := newRowStore(a, b)
	hub := NewHub()
	v := newTestView(hub, store, 0, nil, nil)
	require.NoError(t, v.Mount(context.Background(), m))
	defer v.Unmount()

	ok, err := v.Select(a.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// deleting another row keeps the selection
	store.set(a)
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{
		Type: EventDelete, OldRecord: map[string]interface{}{"id": b.ID.String()},
	}))
	require.Eventually(t, func() bool { return len(v.Items()) == 1 }, time.Second, 5*time.Millisecond)
	require.NotNil(t, v.Selected())
	assert.Equal(t, a.ID, *v.Selected())

	store.set()
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{
		Type: EventDelete, OldRecord: map[string]interface{}{"id": a.ID.String()},
	}))
	require.Eventually(t, func() bool { return v.Selected() == nil && len(v.Items()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestLiveView_SelectUnknownItem(t *testing.T) {
	m := uuid.New()
	store := newRowStore(row{uuid.New(), m, "a"})
	v := newTestView(NewHub(), store, 0, nil, nil)

	_, err := v.Select(uuid.New())
	assert.ErrorIs(t, err, ErrNotMounted)

	require.NoError(t, v.Mount(context.Background(), m))
	defer v.Unmount()
	ok, err := v.Select(uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v.Selected())
}

func TestLiveView_StaleResponseNeverOverwritesFresher(t *testing.T) {
	m := uuid.New()
	a := row{uuid.New(), m, "a"}
	store := newRowStore(a)
	hub := NewHub()
	reg := metrics.New()
	v := newTestView(hub, store, 0, nil, reg)
	require.NoError(t, v.Mount(context.Background(), m))
	defer v.Unmount()

	// call 2 reads the state after the first mutation, then stalls
	gate := store.stallCall(2)
	b := row{uuid.New(), m, "b"}
	store.set(a, b)
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{Type: EventInsert}))
	require.Eventually(t, func() bool { return store.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	c := row{uuid.New(), m, "c"}
	store.set(a, b, c)
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{Type: EventInsert}))
	require.Eventually(t, func() bool { return len(v.Items()) == 3 }, time.Second, 5*time.Millisecond)

	close(gate)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(reg.Refetches.WithLabelValues("properties", "stale")) == 1
	}, time.Second, 5*time.Millisecond)

	final, err := store.fetch(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, names(final), names(v.Items()))
}

func TestLiveView_OlderResponseAfterNewerFailureIsDiscarded(t *testing.T) {
	m := uuid.New()
	a := row{uuid.New(), m, "a"}
	store := newRowStore(a)
	hub := NewHub()
	reg := metrics.New()
	v := newTestView(hub, store, 0, nil, reg)
	require.NoError(t, v.Mount(context.Background(), m))
	defer v.Unmount()

	gate := store.stallCall(2)
	b := row{uuid.New(), m, "b"}
	store.set(a, b)
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{Type: EventInsert}))
	require.Eventually(t, func() bool { return store.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	store.failCall(3)
	store.set(a, b, row{uuid.New(), m, "c"})
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{Type: EventInsert}))
	require.Eventually(t, func() bool { return v.Snapshot().Error != "" }, time.Second, 5*time.Millisecond)

	close(gate)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(reg.Refetches.WithLabelValues("properties", "stale")) == 1
	}, time.Second, 5*time.Millisecond)

	snap := v.Snapshot()
	assert.Equal(t, []string{"a"}, names(snap.Items))
	assert.Equal(t, "backend unavailable", snap.Error)
	assert.Equal(t, uint64(1), snap.Version)
}

func TestLiveView_NotifyDropsSnapshotTakenBeforeSelect(t *testing.T) {
	m := uuid.New()
	a := row{uuid.New(), m, "a"}
	store := newRowStore(a)
	rec := &recorder{}
	v := newTestView(NewHub(), store, 0, rec, nil)
	require.NoError(t, v.Mount(context.Background(), m))
	defer v.Unmount()

	// a refetch snapshot taken before Select but delivered after it
	v.mu.Lock()
	early := v.snapshotLocked()
	v.mu.Unlock()

	ok, err := v.Select(a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	v.notify(early)

	rec.mu.Lock()
	last := rec.snaps[len(rec.snaps)-1]
	rec.mu.Unlock()
	require.NotNil(t, last.Selected)
	assert.Equal(t, a.ID, *last.Selected)
	assert.Equal(t, 2, rec.count())
}

func TestLiveView_UnmountDiscardsInFlightFetch(t *testing.T) {
	m := uuid.New()
	store := newRowStore(row{uuid.New(), m, "a"})
	hub := NewHub()
	rec := &recorder{}
	v := newTestView(hub, store, 0, rec, nil)
	require.NoError(t, v.Mount(context.Background(), m))
	require.Equal(t, 1, rec.count())

	gate := store.stallCall(2)
	store.set(row{uuid.New(), m, "a"}, row{uuid.New(), m, "b"})
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{Type: EventInsert}))
	require.Eventually(t, func() bool { return store.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	v.Unmount()
	assert.False(t, v.Mounted())
	assert.Equal(t, 0, hub.Subscribers(marketFilter(m)))
	close(gate)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, []string{"a"}, names(v.Items()))
}

func TestLiveView_RemountTearsDownPreviousSubscription(t *testing.T) {
	m1, m2 := uuid.New(), uuid.New()
	store := newRowStore(row{uuid.New(), m1, "one"}, row{uuid.New(), m2, "two"})
	hub := NewHub()
	reg := metrics.New()
	v := newTestView(hub, store, 0, nil, reg)

	require.NoError(t, v.Mount(context.Background(), m1))
	require.NoError(t, v.Mount(context.Background(), m2))
	defer v.Unmount()

	assert.Equal(t, 0, hub.Subscribers(marketFilter(m1)))
	assert.Equal(t, 1, hub.Subscribers(marketFilter(m2)))
	assert.Equal(t, []string{"two"}, names(v.Items()))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.LiveSubscribers))

	// events for the old market no longer reach the view
	before := store.calls.Load()
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m1), ChangeEvent{Type: EventInsert}))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, store.calls.Load())
}

func TestLiveView_ContextCancelUnmounts(t *testing.T) {
	m := uuid.New()
	hub := NewHub()
	v := newTestView(hub, newRowStore(), 0, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, v.Mount(ctx, m))
	cancel()
	require.Eventually(t, func() bool { return !v.Mounted() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.Subscribers(marketFilter(m)))
}

func TestLiveView_DebounceCoalescesBurst(t *testing.T) {
	m := uuid.New()
	store := newRowStore(row{uuid.New(), m, "a"})
	hub := NewHub()
	v := newTestView(hub, store, 40*time.Millisecond, nil, nil)
	require.NoError(t, v.Mount(context.Background(), m))
	defer v.Unmount()
	require.Equal(t, int32(1), store.calls.Load())

	for i := 0; i < 5; i++ {
		require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{Type: EventUpdate}))
	}
	require.Eventually(t, func() bool { return store.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestLiveView_FetchErrorKeepsItems(t *testing.T) {
	m := uuid.New()
	store := newRowStore(row{uuid.New(), m, "a"})
	hub := NewHub()
	rec := &recorder{}
	v := newTestView(hub, store, 0, rec, nil)
	require.NoError(t, v.Mount(context.Background(), m))
	defer v.Unmount()

	store.fail.Store(true)
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{Type: EventUpdate}))
	require.Eventually(t, func() bool { return v.Snapshot().Error != "" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a"}, names(v.Items()))
	assert.Equal(t, "backend unavailable", v.Snapshot().Error)

	store.fail.Store(false)
	require.NoError(t, hub.Publish(context.Background(), marketFilter(m), ChangeEvent{Type: EventUpdate}))
	require.Eventually(t, func() bool { return v.Snapshot().Error == "" }, time.Second, 5*time.Millisecond)
}

func TestLiveView_SubscribeFailure(t *testing.T) {
	v := NewLiveView(Options[row]{
		Subscriber: failingSubscriber{},
		Table:      "properties",
		Column:     "market_id",
		Fetch:      newRowStore().fetch,
		ID:         func(r row) uuid.UUID { return r.ID },
	})
	require.Error(t, v.Mount(context.Background(), uuid.New()))
	assert.False(t, v.Mounted())
}

type failingSubscriber struct{}

func (failingSubscriber) Subscribe(context.Context, Filter) (Subscription, error) {
	return nil, errors.New("socket refused")
}
