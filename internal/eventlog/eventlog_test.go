package eventlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortlink/internal/store"
)

func TestAppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemoryStore())

	require.NoError(t, l.Append(ctx, ShortenCreated, map[string]string{"shortCode": "abc123"}))
	require.NoError(t, l.Append(ctx, Redirect, map[string]string{"shortCode": "abc123"}))
	require.NoError(t, l.Append(ctx, RedirectNotFound, map[string]string{"shortCode": "nope"}))

	events, err := l.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, ShortenCreated, events[0].Type)
	assert.Equal(t, Redirect, events[1].Type)
	assert.Equal(t, RedirectNotFound, events[2].Type)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(events[2].Payload, &payload))
	assert.Equal(t, "nope", payload["shortCode"])
}

func TestAppendStampsTimestamp(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemoryStore())
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	require.NoError(t, l.Append(ctx, LoginAttempt, map[string]string{"email": "ada@example.com"}))

	events, err := l.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed.UnixMilli(), events[0].TS)
}

func TestEventsEmptyLog(t *testing.T) {
	l := New(store.NewMemoryStore())

	events, err := l.Events(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppendRejectsUnserializablePayload(t *testing.T) {
	l := New(store.NewMemoryStore())

	err := l.Append(context.Background(), Redirect, func() {})
	assert.Error(t, err)
}
