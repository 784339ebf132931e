// Package cache layers chunking over a size-constrained key/value cache so
// that payloads larger than the backend's per-key limit survive round trips.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/recruit"
)

// DefaultChunkSize stays under the 100KB-per-key limit common to hosted
// caches, with headroom for key overhead.
const DefaultChunkSize = 90_000

type chunkMeta struct {
	Count int `json:"count"`
}

// Chunked splits oversized values into fixed-size chunks stored under
// "key_<i>" with a "key_meta" count record, and reassembles them on read.
type Chunked struct {
	store     recruit.CacheStore
	chunkSize int
	logger    *zap.Logger
}

// NewChunked wraps store with chunking at DefaultChunkSize.
func NewChunked(store recruit.CacheStore, logger *zap.Logger) *Chunked {
	return &Chunked{store: store, chunkSize: DefaultChunkSize, logger: logger}
}

// NewChunkedSize wraps store with an explicit chunk size (tests).
func NewChunkedSize(store recruit.CacheStore, chunkSize int, logger *zap.Logger) *Chunked {
	return &Chunked{store: store, chunkSize: chunkSize, logger: logger}
}

// PutLarge stores value under key, chunking when it exceeds the chunk size.
// Small values clear any prior chunk metadata; large values clear the plain
// key so stale unchunked reads cannot shadow the new value.
func (c *Chunked) PutLarge(ctx context.Context, key, value string, ttl time.Duration) error {
	if len(value) <= c.chunkSize {
		if err := c.store.Put(ctx, key, value, ttl); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		if err := c.store.Remove(ctx, metaKey(key)); err != nil {
			return fmt.Errorf("clear meta %s: %w", key, err)
		}
		return nil
	}

	count := 0
	for start := 0; start < len(value); start += c.chunkSize {
		end := min(start+c.chunkSize, len(value))
		if err := c.store.Put(ctx, chunkKey(key, count), value[start:end], ttl); err != nil {
			return fmt.Errorf("put chunk %d of %s: %w", count, key, err)
		}
		count++
	}

	meta, err := json.Marshal(chunkMeta{Count: count})
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := c.store.Put(ctx, metaKey(key), string(meta), ttl); err != nil {
		return fmt.Errorf("put meta %s: %w", key, err)
	}
	if err := c.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("clear plain key %s: %w", key, err)
	}
	c.logger.Debug("cache value chunked",
		zap.String("key", key),
		zap.Int("bytes", len(value)),
		zap.Int("chunks", count),
	)
	return nil
}

// GetLarge returns the value stored under key, or "" when absent. A chunk
// set with any missing piece reads as absent rather than as a partial
// value.
func (c *Chunked) GetLarge(ctx context.Context, key string) (string, error) {
	// Plain key first: migration path for values written before chunking.
	plain, err := c.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	if plain != "" {
		return plain, nil
	}

	rawMeta, err := c.store.Get(ctx, metaKey(key))
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	if rawMeta == "" {
		return "", nil
	}
	var meta chunkMeta
	if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
		c.logger.Warn("cache meta corrupted", zap.String("key", key), zap.Error(err))
		return "", nil
	}

	var sb strings.Builder
	for i := 0; i < meta.Count; i++ {
		part, err := c.store.Get(ctx, chunkKey(key, i))
		if err != nil {
			return "", fmt.Errorf("get chunk %d of %s: %w", i, key, err)
		}
		if part == "" {
			c.logger.Warn("cache chunk missing, failing closed",
				zap.String("key", key),
				zap.Int("chunk", i),
			)
			return "", nil
		}
		sb.WriteString(part)
	}
	return sb.String(), nil
}

func chunkKey(key string, i int) string {
	return fmt.Sprintf("%s_%d", key, i)
}

func metaKey(key string) string {
	return key + "_meta"
}
