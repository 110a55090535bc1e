// Package analytics captures click events on resolved short URLs and
// computes display aggregates from them.
package analytics

import (
	"context"
	"sort"
	"time"

	"shortlink/internal/geo"
	"shortlink/internal/registry"
)

// ClickContext carries the request metadata attached to a click.
type ClickContext struct {
	Referrer  string
	UserAgent string
	IP        string
}

// Recorder appends click events to entries and persists them through the
// registry.
type Recorder struct {
	registry   *registry.Registry
	geo        *geo.Client
	geoTimeout time.Duration
	now        func() time.Time
}

// NewRecorder creates a Recorder. geoClient may be nil; every click then
// records with country Unknown.
func NewRecorder(reg *registry.Registry, geoClient *geo.Client, geoTimeout time.Duration) *Recorder {
	if geoTimeout <= 0 {
		geoTimeout = 1500 * time.Millisecond
	}
	return &Recorder{
		registry:   reg,
		geo:        geoClient,
		geoTimeout: geoTimeout,
		now:        time.Now,
	}
}

// Record appends one click to entry and persists the mutation. The geo
// lookup is bounded by the recorder's timeout and its failure is absorbed
// as Unknown; enrichment is never on the critical path of recording.
func (r *Recorder) Record(ctx context.Context, entry *registry.UrlEntry, click ClickContext) (*registry.UrlEntry, error) {
	country := geo.Unknown
	lookupCtx, cancel := context.WithTimeout(ctx, r.geoTimeout)
	if resolved, err := r.geo.Lookup(lookupCtx, click.IP); err == nil {
		country = resolved
	}
	cancel()

	entry.Clicks = append(entry.Clicks, registry.ClickEvent{
		TS:       r.now().UnixMilli(),
		Referrer: click.Referrer,
		UA:       click.UserAgent,
		Country:  country,
	})

	if err := r.registry.Update(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Bucket is one timeline slot: all clicks with Start <= ts < Start+size.
type Bucket struct {
	Start int64 `json:"bucket_start"` // epoch milliseconds
	Count int   `json:"count"`
}

// Stats are the aggregates computed from an entry's click log.
type Stats struct {
	TotalClicks int            `json:"total_clicks"`
	ByReferrer  map[string]int `json:"by_referrer"`
	ByCountry   map[string]int `json:"by_country"`
	Timeline    []Bucket       `json:"timeline"`
}

// Aggregate computes Stats for entry with the given timeline granularity.
// A zero bucketSize defaults to hourly. Pure function, no side effects.
func Aggregate(entry *registry.UrlEntry, bucketSize time.Duration) Stats {
	if bucketSize <= 0 {
		bucketSize = time.Hour
	}
	size := bucketSize.Milliseconds()

	stats := Stats{
		TotalClicks: len(entry.Clicks),
		ByReferrer:  make(map[string]int),
		ByCountry:   make(map[string]int),
		Timeline:    []Bucket{},
	}

	counts := make(map[int64]int)
	for _, click := range entry.Clicks {
		stats.ByReferrer[click.Referrer]++
		stats.ByCountry[click.Country]++
		counts[click.TS-click.TS%size]++
	}

	starts := make([]int64, 0, len(counts))
	for start := range counts {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	for _, start := range starts {
		stats.Timeline = append(stats.Timeline, Bucket{Start: start, Count: counts[start]})
	}
	return stats
}
