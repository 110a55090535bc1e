package registry

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortlink/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return New(st), st
}

func TestShorten_GeneratedCode(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	entry, err := reg.Shorten(ctx, "https://example.com/some/long/path", "", 0)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9]{6}$`), entry.ShortCode)
	assert.Equal(t, "https://example.com/some/long/path", entry.LongURL)
	assert.Empty(t, entry.Clicks)
	assert.Equal(t, entry.CreatedAt+DefaultTTL.Milliseconds(), entry.ExpiresAt)
	assert.Greater(t, entry.ExpiresAt, entry.CreatedAt)
}

func TestShorten_GeneratedCodesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		entry, err := reg.Shorten(ctx, "https://example.com", "", 0)
		require.NoError(t, err)
		assert.False(t, seen[entry.ShortCode], "code %s issued twice", entry.ShortCode)
		seen[entry.ShortCode] = true
	}
}

func TestShorten_InvalidURL(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	for _, longURL := range []string{
		"not a url",
		"ftp://example.com/file",
		"example.com/no-scheme",
		"https://",
		"",
	} {
		_, err := reg.Shorten(ctx, longURL, "", 0)
		assert.ErrorIs(t, err, ErrInvalidURL, "input %q", longURL)
	}
}

func TestShorten_InvalidCustomCode(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	for _, code := range []string{
		"ab",                    // too short
		"abcdefghijklmnopqrstu", // 21 chars
		"has-dash",
		"has space",
	} {
		_, err := reg.Shorten(ctx, "http://x.com", code, 0)
		assert.ErrorIs(t, err, ErrInvalidCode, "code %q", code)
	}
}

func TestShorten_DuplicateCustomCode(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, err := reg.Shorten(ctx, "https://example.com/a", "mycode", 0)
	require.NoError(t, err)

	_, err = reg.Shorten(ctx, "https://example.com/b", "mycode", 0)
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestShorten_ExpiredCodeIsNotRecycled(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	now := time.Now()
	reg.now = func() time.Time { return now }

	_, err := reg.Shorten(ctx, "https://example.com/a", "stale1", time.Minute)
	require.NoError(t, err)

	// Entry is long past its expiry, the code stays taken regardless.
	reg.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = reg.Shorten(ctx, "https://example.com/b", "stale1", 0)
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestShorten_GenerationExhausted(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	// Every draw lands on the same code; once it is taken the registry
	// must give up after its bounded attempts.
	reg.genCode = func() (string, error) { return "AAAAAA", nil }

	_, err := reg.Shorten(ctx, "https://example.com/a", "", 0)
	require.NoError(t, err)

	_, err = reg.Shorten(ctx, "https://example.com/b", "", 0)
	assert.ErrorIs(t, err, ErrGenerationExhausted)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	created, err := reg.Shorten(ctx, "https://example.com", "fresh1", 0)
	require.NoError(t, err)

	entry, err := reg.Resolve(ctx, "fresh1")
	require.NoError(t, err)
	assert.Equal(t, created.LongURL, entry.LongURL)
	assert.Empty(t, entry.Clicks)

	_, err = reg.Resolve(ctx, "nosuch")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_ExpiredNotNotFound(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	now := time.Now()
	reg.now = func() time.Time { return now }

	_, err := reg.Shorten(ctx, "https://example.com", "oldone", time.Minute)
	require.NoError(t, err)

	reg.now = func() time.Time { return now.Add(2 * time.Minute) }

	_, err = reg.Resolve(ctx, "oldone")
	var expired *ExpiredError
	require.ErrorAs(t, err, &expired)
	assert.NotErrorIs(t, err, ErrNotFound)

	// The error still carries the entry for metadata display.
	assert.Equal(t, "oldone", expired.Entry.ShortCode)
	assert.Equal(t, "https://example.com", expired.Entry.LongURL)
}

func TestUpdate_PersistsClicks(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	entry, err := reg.Shorten(ctx, "https://example.com", "clicky", 0)
	require.NoError(t, err)

	entry.Clicks = append(entry.Clicks, ClickEvent{TS: entry.CreatedAt + 5, Country: "Unknown"})
	require.NoError(t, reg.Update(ctx, entry))

	resolved, err := reg.Resolve(ctx, "clicky")
	require.NoError(t, err)
	require.Len(t, resolved.Clicks, 1)
	assert.GreaterOrEqual(t, resolved.Clicks[0].TS, resolved.CreatedAt)
}

func TestSweep_RemovesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	now := time.Now()
	reg.now = func() time.Time { return now }

	_, err := reg.Shorten(ctx, "https://example.com/a", "keeper", time.Hour)
	require.NoError(t, err)
	_, err = reg.Shorten(ctx, "https://example.com/b", "goner1", time.Minute)
	require.NoError(t, err)

	reg.now = func() time.Time { return now.Add(30 * time.Minute) }

	removed, err := reg.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = reg.Resolve(ctx, "keeper")
	assert.NoError(t, err)
	_, err = reg.Resolve(ctx, "goner1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, err := reg.Shorten(ctx, "https://example.com", "byebye", 0)
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, "byebye"))
	_, err = reg.Resolve(ctx, "byebye")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, reg.Delete(ctx, "byebye"), ErrNotFound)
}

func TestMigrate_LegacyCollection(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := New(st)

	legacy := `[
		{"shortcode":"abc123","longUrl":"https://example.com/a","createdAt":1700000000000},
		{"shortcode":"def456","longUrl":"https://example.com/b","createdAt":1700000100000,"expiresAt":1700003600000,"clicks":[{"ts":1700000200000,"referrer":"","ua":"curl","country":"Unknown"}]}
	]`
	require.NoError(t, st.Set(ctx, LegacyCollectionKey, legacy))

	require.NoError(t, reg.Migrate(ctx))

	raw, err := st.Get(ctx, CollectionKey)
	require.NoError(t, err)

	var collection StoredCollection
	require.NoError(t, json.Unmarshal([]byte(raw), &collection))
	assert.Equal(t, SchemaVersion, collection.Version)
	require.Len(t, collection.Entries, 2)

	// Missing expiry backfills from creation time, missing clicks become empty.
	assert.Equal(t, int64(1700000000000)+DefaultTTL.Milliseconds(), collection.Entries[0].ExpiresAt)
	assert.NotNil(t, collection.Entries[0].Clicks)
	assert.Empty(t, collection.Entries[0].Clicks)

	// Fields already present survive untouched.
	assert.Equal(t, int64(1700003600000), collection.Entries[1].ExpiresAt)
	require.Len(t, collection.Entries[1].Clicks, 1)

	// The legacy key stays in place.
	kept, err := st.Get(ctx, LegacyCollectionKey)
	require.NoError(t, err)
	assert.Equal(t, legacy, kept)
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := New(st)

	legacy := `[{"shortcode":"abc123","longUrl":"https://example.com","createdAt":1700000000000}]`
	require.NoError(t, st.Set(ctx, LegacyCollectionKey, legacy))

	require.NoError(t, reg.Migrate(ctx))
	first, err := st.Get(ctx, CollectionKey)
	require.NoError(t, err)

	require.NoError(t, reg.Migrate(ctx))
	second, err := st.Get(ctx, CollectionKey)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMigrate_NothingToMigrate(t *testing.T) {
	ctx := context.Background()
	reg, st := newTestRegistry(t)

	require.NoError(t, reg.Migrate(ctx))

	_, err := st.Get(ctx, CollectionKey)
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}
