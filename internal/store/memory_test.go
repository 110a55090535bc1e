package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, st.Set(ctx, "k", "v1"))
	value, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", value)

	require.NoError(t, st.Set(ctx, "k", "v2"))
	value, err = st.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", value)

	require.NoError(t, st.Remove(ctx, "k"))
	_, err = st.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Removing an absent key is a no-op
	require.NoError(t, st.Remove(ctx, "k"))
}

func TestMemoryStore_SubscribeObservesChanges(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	var changes []Change
	cancel := st.Subscribe("watched", func(c Change) {
		changes = append(changes, c)
	})
	defer cancel()

	require.NoError(t, st.Set(ctx, "watched", "first"))
	require.NoError(t, st.Set(ctx, "watched", "second"))
	require.NoError(t, st.Remove(ctx, "watched"))

	require.Len(t, changes, 3)

	assert.Equal(t, Change{Key: "watched", Old: "", New: "first"}, changes[0])
	assert.Equal(t, Change{Key: "watched", Old: "first", New: "second"}, changes[1])
	assert.Equal(t, Change{Key: "watched", Old: "second", Removed: true}, changes[2])
}

func TestMemoryStore_SubscribeIsPerKey(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	var seen int
	cancel := st.Subscribe("a", func(Change) { seen++ })
	defer cancel()

	require.NoError(t, st.Set(ctx, "b", "value"))
	assert.Zero(t, seen)

	require.NoError(t, st.Set(ctx, "a", "value"))
	assert.Equal(t, 1, seen)
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	var seen int
	cancel := st.Subscribe("k", func(Change) { seen++ })

	require.NoError(t, st.Set(ctx, "k", "v1"))
	cancel()
	require.NoError(t, st.Set(ctx, "k", "v2"))

	assert.Equal(t, 1, seen)
}

func TestMemoryStore_RemoveAbsentDoesNotNotify(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	var seen int
	cancel := st.Subscribe("k", func(Change) { seen++ })
	defer cancel()

	require.NoError(t, st.Remove(ctx, "k"))
	assert.Zero(t, seen)
}
