package events

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultDedupTTL is how long a fingerprint is remembered.
	DefaultDedupTTL = 24 * time.Hour

	// dedupKeyPrefix namespaces dedup keys in Redis.
	dedupKeyPrefix = "mailtriage:seen:"
)

// DedupFilter remembers message fingerprints so the same report submitted
// twice is only triaged once.
type DedupFilter struct {
	client Client
	ttl    time.Duration
}

// NewDedupFilter creates a dedup filter backed by Redis. A ttl of zero uses
// DefaultDedupTTL.
func NewDedupFilter(client Client, ttl time.Duration) *DedupFilter {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &DedupFilter{client: client, ttl: ttl}
}

// Seen reports whether fingerprint was already recorded. The first call for
// a fingerprint records it atomically and returns false.
func (f *DedupFilter) Seen(ctx context.Context, fingerprint string) (bool, error) {
	set, err := f.client.SetNX(ctx, dedupKeyPrefix+fingerprint, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return !set, nil
}
