// Package realtime carries row-change notifications from the hosted database
// (or from the portal's own writes) to live views that keep a scoped list in
// sync by re-fetching it.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is one committed row mutation. Record is the new row (INSERT,
// UPDATE); OldRecord is the previous row (UPDATE, DELETE) when the table's
// replica identity provides it.
type ChangeEvent struct {
	Schema          string                 `json:"schema"`
	Table           string                 `json:"table"`
	Type            EventType              `json:"type"`
	Record          map[string]interface{} `json:"record,omitempty"`
	OldRecord       map[string]interface{} `json:"old_record,omitempty"`
	CommitTimestamp time.Time              `json:"commit_timestamp"`
}

// RecordID returns the "id" column of the affected row, looking at the new row
// first and the old row second.
func (e ChangeEvent) RecordID() (uuid.UUID, bool) {
	for _, rec := range []map[string]interface{}{e.Record, e.OldRecord} {
		if rec == nil {
			continue
		}
		s, ok := rec["id"].(string)
		if !ok {
			continue
		}
		if id, err := uuid.Parse(s); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}

// Filter scopes a subscription to rows of one table whose Column equals Value.
type Filter struct {
	Schema string
	Table  string
	Column string
	Value  string
}

func (f Filter) schema() string {
	if f.Schema == "" {
		return "public"
	}
	return f.Schema
}

// Expression renders the filter in PostgREST form, e.g. "market_id=eq.<uuid>".
func (f Filter) Expression() string {
	return fmt.Sprintf("%s=eq.%s", f.Column, f.Value)
}

// Channel is the logical channel name shared by publishers and subscribers.
func (f Filter) Channel() string {
	return fmt.Sprintf("realtime:%s:%s:%s", f.schema(), f.Table, f.Expression())
}

// Subscription delivers events until Close is called or its context ends.
// Events is closed once the subscription is torn down.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, f Filter) (Subscription, error)
}

type Publisher interface {
	Publish(ctx context.Context, f Filter, ev ChangeEvent) error
}
