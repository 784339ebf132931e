package recruit

import (
	"context"
	"time"
)

// CacheStore is a size-constrained TTL key/value cache. Values larger than
// the backend's per-key limit go through cache.Chunked instead of being
// written directly.
type CacheStore interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ("", nil) on a miss.
	Get(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
}

// PropertyStore is a small durable key/value store for persisted state
// such as the blacklist map.
type PropertyStore interface {
	Set(ctx context.Context, key, value string) error
	// Get returns ("", nil) when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// RosterStore is the row-oriented external store holding the recruit pool.
// Replace swaps the full contents in one operation.
type RosterStore interface {
	Load(ctx context.Context) ([]Candidate, error)
	Replace(ctx context.Context, pool []Candidate) error
}

// BlobStore writes backup snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes scan events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
