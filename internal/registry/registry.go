package registry

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"regexp"
	"time"

	"github.com/sethvargo/go-retry"

	"shortlink/internal/store"
)

const (
	// CollectionKey holds the versioned StoredCollection.
	CollectionKey = "shortlink:urls:v2"
	// LegacyCollectionKey holds the unversioned pre-migration records.
	// Migrate reads it and leaves it untouched.
	LegacyCollectionKey = "shortlink:urls"

	// SchemaVersion is the current StoredCollection version.
	SchemaVersion = 2

	// DefaultTTL applies when no TTL is requested, and backfills expiry
	// for legacy records that never carried one.
	DefaultTTL = 30 * time.Minute

	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	codeLength      = 6
	maxCodeAttempts = 10
)

var codePattern = regexp.MustCompile(`^[a-zA-Z0-9]{3,20}$`)

// errCodeTaken drives the generation retry loop; it never escapes Shorten.
var errCodeTaken = errors.New("generated code already taken")

// Registry owns the collection of URL entries: code generation and
// validation, resolution, schema migration and maintenance.
//
// Every mutation is a read-modify-write of the whole collection, so two
// contexts writing concurrently race and the last write wins. That is the
// accepted contract for this store; there is no locking protocol.
type Registry struct {
	store store.Store
	now   func() time.Time
	// genCode draws one candidate code; swapped out in tests.
	genCode func() (string, error)
}

// New creates a Registry over the given store.
func New(st store.Store) *Registry {
	return &Registry{
		store:   st,
		now:     time.Now,
		genCode: randomCode,
	}
}

// Shorten validates longURL, determines a code and persists a new entry.
// A zero ttl falls back to DefaultTTL.
func (r *Registry) Shorten(ctx context.Context, longURL, customCode string, ttl time.Duration) (*UrlEntry, error) {
	if !validLongURL(longURL) {
		return nil, ErrInvalidURL
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	collection, err := r.loadCollection(ctx)
	if err != nil {
		return nil, err
	}

	code := customCode
	if code != "" {
		if !codePattern.MatchString(code) {
			return nil, ErrInvalidCode
		}
		if collection.find(code) != nil {
			return nil, ErrDuplicateCode
		}
	} else {
		code, err = r.generateCode(ctx, collection)
		if err != nil {
			return nil, err
		}
	}

	now := r.now().UnixMilli()
	entry := UrlEntry{
		ShortCode: code,
		LongURL:   longURL,
		CreatedAt: now,
		ExpiresAt: now + ttl.Milliseconds(),
		Clicks:    []ClickEvent{},
	}

	collection.Entries = append(collection.Entries, entry)
	if err := r.saveCollection(ctx, collection); err != nil {
		return nil, err
	}

	return &entry, nil
}

// Resolve returns the live entry for code. Expired entries come back as an
// ExpiredError carrying the entry; recording the click is the caller's job.
func (r *Registry) Resolve(ctx context.Context, code string) (*UrlEntry, error) {
	collection, err := r.loadCollection(ctx)
	if err != nil {
		return nil, err
	}

	entry := collection.find(code)
	if entry == nil {
		return nil, ErrNotFound
	}

	found := *entry
	if found.Expired(r.now().UnixMilli()) {
		return nil, &ExpiredError{Entry: &found}
	}
	return &found, nil
}

// Update replaces the stored entry matching entry.ShortCode. Used by the
// analytics recorder to persist appended clicks.
func (r *Registry) Update(ctx context.Context, entry *UrlEntry) error {
	collection, err := r.loadCollection(ctx)
	if err != nil {
		return err
	}

	existing := collection.find(entry.ShortCode)
	if existing == nil {
		return ErrNotFound
	}
	*existing = *entry

	return r.saveCollection(ctx, collection)
}

// UpdateExpiry moves an entry's expiry. The new instant must still be
// after CreatedAt.
func (r *Registry) UpdateExpiry(ctx context.Context, code string, expiresAt int64) error {
	collection, err := r.loadCollection(ctx)
	if err != nil {
		return err
	}

	entry := collection.find(code)
	if entry == nil {
		return ErrNotFound
	}
	if expiresAt <= entry.CreatedAt {
		return ErrInvalidCode
	}
	entry.ExpiresAt = expiresAt

	return r.saveCollection(ctx, collection)
}

// Delete removes an entry outright, freeing its code.
func (r *Registry) Delete(ctx context.Context, code string) error {
	collection, err := r.loadCollection(ctx)
	if err != nil {
		return err
	}

	kept := collection.Entries[:0]
	removed := false
	for _, entry := range collection.Entries {
		if entry.ShortCode == code {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if !removed {
		return ErrNotFound
	}
	collection.Entries = kept

	return r.saveCollection(ctx, collection)
}

// List returns a snapshot of every entry, expired ones included.
func (r *Registry) List(ctx context.Context) ([]UrlEntry, error) {
	collection, err := r.loadCollection(ctx)
	if err != nil {
		return nil, err
	}
	return collection.Entries, nil
}

// Sweep removes entries past their expiry and reports how many went.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	collection, err := r.loadCollection(ctx)
	if err != nil {
		return 0, err
	}

	now := r.now().UnixMilli()
	kept := collection.Entries[:0]
	removed := 0
	for _, entry := range collection.Entries {
		if entry.Expired(now) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	if removed == 0 {
		return 0, nil
	}
	collection.Entries = kept

	if err := r.saveCollection(ctx, collection); err != nil {
		return 0, err
	}
	return removed, nil
}

// Migrate lifts an unversioned legacy collection into the versioned
// envelope. The legacy key is left in place for forward compatibility.
// Safe to call on an already-migrated store.
func (r *Registry) Migrate(ctx context.Context) error {
	if _, err := r.store.Get(ctx, CollectionKey); err == nil {
		return nil // already migrated
	} else if !errors.Is(err, store.ErrKeyNotFound) {
		return err
	}

	raw, err := r.store.Get(ctx, LegacyCollectionKey)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil // nothing to migrate
	}
	if err != nil {
		return err
	}

	var records []legacyRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return fmt.Errorf("failed to decode legacy collection: %w", err)
	}

	collection := StoredCollection{Version: SchemaVersion, Entries: make([]UrlEntry, 0, len(records))}
	for _, record := range records {
		entry := UrlEntry{
			ShortCode: record.ShortCode,
			LongURL:   record.LongURL,
			CreatedAt: record.CreatedAt,
			ExpiresAt: record.ExpiresAt,
			Clicks:    record.Clicks,
		}
		// Defaults derive from CreatedAt, not the migration instant, so
		// re-running the migration yields identical output.
		if entry.ExpiresAt == 0 {
			entry.ExpiresAt = entry.CreatedAt + DefaultTTL.Milliseconds()
		}
		if entry.Clicks == nil {
			entry.Clicks = []ClickEvent{}
		}
		collection.Entries = append(collection.Entries, entry)
	}

	return r.saveCollection(ctx, &collection)
}

func (r *Registry) generateCode(ctx context.Context, collection *StoredCollection) (string, error) {
	var code string
	backoff := retry.WithMaxRetries(maxCodeAttempts-1, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		candidate, err := r.genCode()
		if err != nil {
			return err
		}
		if collection.find(candidate) != nil {
			return retry.RetryableError(errCodeTaken)
		}
		code = candidate
		return nil
	})
	if errors.Is(err, errCodeTaken) {
		return "", ErrGenerationExhausted
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate short code: %w", err)
	}
	return code, nil
}

func (r *Registry) loadCollection(ctx context.Context) (*StoredCollection, error) {
	raw, err := r.store.Get(ctx, CollectionKey)
	if errors.Is(err, store.ErrKeyNotFound) {
		return &StoredCollection{Version: SchemaVersion, Entries: []UrlEntry{}}, nil
	}
	if err != nil {
		return nil, err
	}

	var collection StoredCollection
	if err := json.Unmarshal([]byte(raw), &collection); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}
	return &collection, nil
}

func (r *Registry) saveCollection(ctx context.Context, collection *StoredCollection) error {
	data, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	return r.store.Set(ctx, CollectionKey, string(data))
}

// randomCode draws codeLength characters uniformly from the 62-character
// alphabet.
func randomCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

func validLongURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
