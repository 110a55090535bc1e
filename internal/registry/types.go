package registry

// ClickEvent is one recorded redirect through a short URL. Events are
// append-only and immutable once written.
type ClickEvent struct {
	TS       int64  `json:"ts"` // epoch milliseconds
	Referrer string `json:"referrer"`
	UA       string `json:"ua"`
	Country  string `json:"country"`
}

// UrlEntry is a single shortcode -> long URL mapping with its click log.
// Expiration is a read-time predicate on ExpiresAt; entries are never
// evicted automatically, only by an explicit sweep.
type UrlEntry struct {
	ShortCode string       `json:"shortcode"`
	LongURL   string       `json:"longUrl"`
	CreatedAt int64        `json:"createdAt"` // epoch milliseconds
	ExpiresAt int64        `json:"expiresAt"` // epoch milliseconds, > CreatedAt
	Clicks    []ClickEvent `json:"clicks"`
}

// Expired reports whether the entry is past its expiry at the given
// instant (epoch milliseconds).
func (e *UrlEntry) Expired(nowMillis int64) bool {
	return nowMillis > e.ExpiresAt
}

// StoredCollection is the persistence envelope for all entries. The
// whole collection is read, modified and written back as one value.
type StoredCollection struct {
	Version int        `json:"version"`
	Entries []UrlEntry `json:"entries"`
}

func (c *StoredCollection) find(shortCode string) *UrlEntry {
	for i := range c.Entries {
		if c.Entries[i].ShortCode == shortCode {
			return &c.Entries[i]
		}
	}
	return nil
}

// legacyRecord is the unversioned pre-migration shape. Records may lack
// expiry and click data; decoding resolves the shape once, during
// Migrate, and the live path only ever sees StoredCollection.
type legacyRecord struct {
	ShortCode string       `json:"shortcode"`
	LongURL   string       `json:"longUrl"`
	CreatedAt int64        `json:"createdAt"`
	ExpiresAt int64        `json:"expiresAt"`
	Clicks    []ClickEvent `json:"clicks"`
}
