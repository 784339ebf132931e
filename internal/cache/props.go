package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/recruit"
)

// Props applies the same chunking discipline to a durable property store,
// carrying JSON objects instead of raw strings.
type Props struct {
	store     recruit.PropertyStore
	chunkSize int
	logger    *zap.Logger
}

// NewProps wraps store with chunking at DefaultChunkSize.
func NewProps(store recruit.PropertyStore, logger *zap.Logger) *Props {
	return &Props{store: store, chunkSize: DefaultChunkSize, logger: logger}
}

// NewPropsSize wraps store with an explicit chunk size (tests).
func NewPropsSize(store recruit.PropertyStore, chunkSize int, logger *zap.Logger) *Props {
	return &Props{store: store, chunkSize: chunkSize, logger: logger}
}

// SetChunked marshals v and persists it under key, chunked when oversized.
func (p *Props) SetChunked(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	value := string(data)

	if len(value) <= p.chunkSize {
		if err := p.store.Set(ctx, key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		if err := p.store.Delete(ctx, metaKey(key)); err != nil {
			return fmt.Errorf("clear meta %s: %w", key, err)
		}
		return nil
	}

	count := 0
	for start := 0; start < len(value); start += p.chunkSize {
		end := min(start+p.chunkSize, len(value))
		if err := p.store.Set(ctx, chunkKey(key, count), value[start:end]); err != nil {
			return fmt.Errorf("set chunk %d of %s: %w", count, key, err)
		}
		count++
	}
	meta, err := json.Marshal(chunkMeta{Count: count})
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := p.store.Set(ctx, metaKey(key), string(meta)); err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	if err := p.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear plain key %s: %w", key, err)
	}
	return nil
}

// GetChunked reads key into out, reassembling chunks when needed. It
// returns false when the key is absent, a chunk is missing, or the stored
// JSON is corrupt. Persisted-state corruption is never fatal.
func (p *Props) GetChunked(ctx context.Context, key string, out any) (bool, error) {
	value, err := p.read(ctx, key)
	if err != nil {
		return false, err
	}
	if value == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		p.logger.Warn("persisted property corrupted, resetting",
			zap.String("key", key),
			zap.Error(err),
		)
		return false, nil
	}
	return true, nil
}

func (p *Props) read(ctx context.Context, key string) (string, error) {
	plain, err := p.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	if plain != "" {
		return plain, nil
	}

	rawMeta, err := p.store.Get(ctx, metaKey(key))
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	if rawMeta == "" {
		return "", nil
	}
	var meta chunkMeta
	if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
		p.logger.Warn("property meta corrupted", zap.String("key", key), zap.Error(err))
		return "", nil
	}

	var sb strings.Builder
	for i := 0; i < meta.Count; i++ {
		part, err := p.store.Get(ctx, chunkKey(key, i))
		if err != nil {
			return "", fmt.Errorf("get chunk %d of %s: %w", i, key, err)
		}
		if part == "" {
			p.logger.Warn("property chunk missing, failing closed",
				zap.String("key", key),
				zap.Int("chunk", i),
			)
			return "", nil
		}
		sb.WriteString(part)
	}
	return sb.String(), nil
}
