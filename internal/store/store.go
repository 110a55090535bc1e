package store

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when a key has no value in the store.
var ErrKeyNotFound = errors.New("key not found")

// Change describes a single mutation of a store key, as observed by
// subscribers. Old and New carry the raw values; an empty Old means the
// key was previously absent, and Removed marks a deletion.
type Change struct {
	Key     string `json:"key"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Removed bool   `json:"removed"`
}

// Store is a durable key -> string map shared by every execution context
// of the deployment. Writes are last-write-wins at the granularity of a
// full value; there is no transactional guarantee beyond that.
//
// Subscribe registers a handler for changes to a single key. Depending on
// the backend the handler may also observe the subscriber's own writes;
// callers are expected to reconcile idempotently rather than assume the
// notification came from another context.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Subscribe(key string, handler func(Change)) (cancel func())
	Close() error
}
