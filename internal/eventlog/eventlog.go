// Package eventlog keeps an append-only activity log in the shared store.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shortlink/internal/store"
)

// Key is the store key holding the serialized event list.
const Key = "shortlink:events"

// Recognized event types.
const (
	ShortenCreated   = "SHORTEN_CREATED"
	Redirect         = "REDIRECT"
	RedirectNotFound = "REDIRECT_NOT_FOUND"
	RedirectExpired  = "REDIRECT_EXPIRED"
	LoginAttempt     = "LOGIN_ATTEMPT"
	LoginSuccess     = "LOGIN_SUCCESS"
)

// Event is one log line. Events are only ever appended, never rewritten.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	TS      int64           `json:"ts"` // epoch milliseconds
}

// Log appends events to the store. Appends are read-modify-write of the
// whole list, last write wins across contexts, same as the URL collection.
type Log struct {
	store store.Store
	now   func() time.Time
}

// New creates a Log over the given store.
func New(st store.Store) *Log {
	return &Log{store: st, now: time.Now}
}

// Append records one event. payload must be JSON-serializable.
func (l *Log) Append(ctx context.Context, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	events, err := l.Events(ctx)
	if err != nil {
		return err
	}

	events = append(events, Event{
		Type:    eventType,
		Payload: data,
		TS:      l.now().UnixMilli(),
	})

	encoded, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode event log: %w", err)
	}
	return l.store.Set(ctx, Key, string(encoded))
}

// Events returns the full log in append order.
func (l *Log) Events(ctx context.Context) ([]Event, error) {
	raw, err := l.store.Get(ctx, Key)
	if errors.Is(err, store.ErrKeyNotFound) {
		return []Event{}, nil
	}
	if err != nil {
		return nil, err
	}

	var events []Event
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		return nil, fmt.Errorf("failed to decode event log: %w", err)
	}
	return events, nil
}
