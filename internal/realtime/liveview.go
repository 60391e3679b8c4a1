package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"franchisor-portal/internal/infrastructure/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FetchFunc loads the full list scoped to one parent id.
type FetchFunc[T any] func(ctx context.Context, parentID uuid.UUID) ([]T, error)

// Snapshot is the view state handed to OnChange. Version is the token of the
// fetch that produced Items and only ever grows.
type Snapshot[T any] struct {
	ParentID uuid.UUID  `json:"parent_id"`
	Items    []T        `json:"items"`
	Selected *uuid.UUID `json:"selected"`
	Version  uint64     `json:"version"`
	Error    string     `json:"error,omitempty"`

	seq uint64
}

type Options[T any] struct {
	Subscriber Subscriber
	Schema     string
	Table      string
	Column     string // equality filter column, e.g. market_id
	Fetch      FetchFunc[T]
	ID         func(T) uuid.UUID
	// Debounce coalesces notifications arriving within the window into one
	// re-fetch. Zero re-fetches on every notification.
	Debounce time.Duration
	OnChange func(Snapshot[T])
	Log      zerolog.Logger
	Metrics  *metrics.Collectors
}

var ErrNotMounted = errors.New("realtime: view is not mounted")

// LiveView keeps a list scoped to one parent id in sync with backend changes.
// Every notification triggers a full re-fetch; responses are applied only when
// newer than the last resolved one (applied or failed), and never after Unmount.
type LiveView[T any] struct {
	opts Options[T]

	mu         sync.Mutex
	mounted    bool
	generation uint64
	parentID   uuid.UUID
	sub        Subscription
	cancel     context.CancelFunc
	timer      *time.Timer
	items      []T
	selected   *uuid.UUID
	issued     uint64
	applied    uint64
	resolved   uint64
	lastErr    error
	seq        uint64

	notifyMu     sync.Mutex
	lastNotified uint64
}

func NewLiveView[T any](opts Options[T]) *LiveView[T] {
	return &LiveView[T]{opts: opts}
}

// Mount opens the single subscription for parentID, tearing down any previous
// one first, and loads the initial list. The view stays mounted until Unmount
// or until ctx ends.
func (v *LiveView[T]) Mount(ctx context.Context, parentID uuid.UUID) error {
	v.Unmount()

	subCtx, cancel := context.WithCancel(ctx)
	sub, err := v.opts.Subscriber.Subscribe(subCtx, Filter{
		Schema: v.opts.Schema,
		Table:  v.opts.Table,
		Column: v.opts.Column,
		Value:  parentID.String(),
	})
	if err != nil {
		cancel()
		return err
	}

	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.mounted = true
	v.parentID = parentID
	v.sub = sub
	v.cancel = cancel
	v.items = nil
	v.selected = nil
	v.lastErr = nil
	v.mu.Unlock()
	v.opts.Metrics.ViewMounted(1)

	go v.listen(subCtx, gen, sub)
	go func() {
		<-subCtx.Done()
		v.detach(gen)
	}()

	v.refetch(subCtx, gen)
	return nil
}

// Unmount closes the subscription. Fetches still in flight are discarded when
// they resolve.
func (v *LiveView[T]) Unmount() {
	v.detach(0)
}

// detach tears down the mount of generation gen, or the current one when gen is 0.
func (v *LiveView[T]) detach(gen uint64) {
	v.mu.Lock()
	if !v.mounted || (gen != 0 && gen != v.generation) {
		v.mu.Unlock()
		return
	}
	v.mounted = false
	v.generation++
	sub, cancel := v.sub, v.cancel
	v.sub, v.cancel = nil, nil
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.mu.Unlock()

	cancel()
	if err := sub.Close(); err != nil {
		v.opts.Log.Warn().Err(err).Str("table", v.opts.Table).Msg("live view: close subscription")
	}
	v.opts.Metrics.ViewMounted(-1)
}

func (v *LiveView[T]) listen(ctx context.Context, gen uint64, sub Subscription) {
	for ev := range sub.Events() {
		v.opts.Metrics.RealtimeEvent(v.opts.Table, string(ev.Type))
		v.handle(ctx, gen, ev)
	}
}

func (v *LiveView[T]) handle(ctx context.Context, gen uint64, ev ChangeEvent) {
	v.mu.Lock()
	if gen != v.generation || !v.mounted {
		v.mu.Unlock()
		return
	}
	cleared := false
	if ev.Type == EventDelete && v.selected != nil {
		if id, ok := ev.RecordID(); ok && id == *v.selected {
			v.selected = nil
			cleared = true
		}
	}
	var snap Snapshot[T]
	if cleared {
		snap = v.snapshotLocked()
	}
	if d := v.opts.Debounce; d > 0 {
		if v.timer != nil {
			v.timer.Stop()
		}
		v.timer = time.AfterFunc(d, func() { v.refetch(ctx, gen) })
	} else {
		go v.refetch(ctx, gen)
	}
	v.mu.Unlock()

	if cleared {
		v.notify(snap)
	}
}

func (v *LiveView[T]) refetch(ctx context.Context, gen uint64) {
	v.mu.Lock()
	if gen != v.generation || !v.mounted {
		v.mu.Unlock()
		return
	}
	v.issued++
	token := v.issued
	parentID := v.parentID
	v.mu.Unlock()

	items, err := v.opts.Fetch(ctx, parentID)

	v.mu.Lock()
	switch {
	case gen != v.generation || !v.mounted:
		v.mu.Unlock()
		v.opts.Metrics.Refetch(v.opts.Table, "detached")
		return
	case token <= v.resolved:
		v.mu.Unlock()
		v.opts.Metrics.Refetch(v.opts.Table, "stale")
		return
	case err != nil:
		v.resolved = token
		v.lastErr = err
		snap := v.snapshotLocked()
		v.mu.Unlock()
		v.opts.Metrics.Refetch(v.opts.Table, "error")
		v.opts.Log.Error().Err(err).Str("table", v.opts.Table).Str("parent_id", parentID.String()).Msg("live view: refetch failed")
		v.notify(snap)
		return
	}
	v.applied = token
	v.resolved = token
	v.items = items
	v.lastErr = nil
	snap := v.snapshotLocked()
	v.mu.Unlock()
	v.opts.Metrics.Refetch(v.opts.Table, "applied")
	v.notify(snap)
}

// notify delivers snapshots to OnChange in the order they were taken, dropping
// any that arrive after a later one was delivered.
func (v *LiveView[T]) notify(snap Snapshot[T]) {
	if v.opts.OnChange == nil {
		return
	}
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	if snap.seq <= v.lastNotified {
		return
	}
	v.lastNotified = snap.seq
	v.opts.OnChange(snap)
}

func (v *LiveView[T]) snapshotLocked() Snapshot[T] {
	v.seq++
	snap := Snapshot[T]{
		ParentID: v.parentID,
		Items:    append([]T(nil), v.items...),
		Version:  v.applied,
		seq:      v.seq,
	}
	if snap.Items == nil {
		snap.Items = []T{}
	}
	if v.selected != nil {
		id := *v.selected
		snap.Selected = &id
	}
	if v.lastErr != nil {
		snap.Error = v.lastErr.Error()
	}
	return snap
}

// Snapshot returns the current state.
func (v *LiveView[T]) Snapshot() Snapshot[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *LiveView[T]) Items() []T {
	return v.Snapshot().Items
}

// Select marks the item with id as selected. It reports false, leaving the
// selection unchanged, when no such item is loaded.
func (v *LiveView[T]) Select(id uuid.UUID) (bool, error) {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return false, ErrNotMounted
	}
	found := false
	for _, it := range v.items {
		if v.opts.ID(it) == id {
			found = true
			break
		}
	}
	if !found {
		v.mu.Unlock()
		return false, nil
	}
	v.selected = &id
	snap := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(snap)
	return true, nil
}

func (v *LiveView[T]) Selected() *uuid.UUID {
	return v.Snapshot().Selected
}

// Mounted reports whether the view currently holds a subscription.
func (v *LiveView[T]) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted
}
