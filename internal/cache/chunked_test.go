package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/clock/system"
	"github.com/clanforge/headhunter/internal/storage/memory"
)

const testChunkSize = 10

func newTestChunked() (*Chunked, *memory.CacheStore) {
	store := memory.NewCacheStore(system.New())
	return NewChunkedSize(store, testChunkSize, zap.NewNop()), store
}

func TestPutLargeRoundTripAtBoundaries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, size := range []int{testChunkSize - 1, testChunkSize, testChunkSize + 1, testChunkSize * 3} {
		c, _ := newTestChunked()
		value := strings.Repeat("x", size)

		require.NoError(t, c.PutLarge(ctx, "payload", value, time.Minute))
		got, err := c.GetLarge(ctx, "payload")
		require.NoError(t, err)
		require.Equal(t, value, got, "size %d", size)
	}
}

func TestPutLargeSplitsOversizedValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestChunked()

	value := strings.Repeat("a", testChunkSize*2+3)
	require.NoError(t, c.PutLarge(ctx, "payload", value, time.Minute))

	// Plain key must be cleared so it cannot shadow the chunk set.
	plain, err := store.Get(ctx, "payload")
	require.NoError(t, err)
	require.Empty(t, plain)

	meta, err := store.Get(ctx, "payload_meta")
	require.NoError(t, err)
	require.JSONEq(t, `{"count":3}`, meta)
}

func TestGetLargeFailsClosedOnMissingChunk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestChunked()

	value := strings.Repeat("b", testChunkSize*3)
	require.NoError(t, c.PutLarge(ctx, "payload", value, time.Minute))
	require.NoError(t, store.Remove(ctx, "payload_1"))

	got, err := c.GetLarge(ctx, "payload")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestGetLargeReadsPlainKeyFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestChunked()

	// Values written before chunking existed live under the plain key.
	require.NoError(t, store.Put(ctx, "legacy", "old-value", time.Minute))

	got, err := c.GetLarge(ctx, "legacy")
	require.NoError(t, err)
	require.Equal(t, "old-value", got)
}

func TestGetLargeMissReturnsEmpty(t *testing.T) {
	t.Parallel()
	c, _ := newTestChunked()

	got, err := c.GetLarge(context.Background(), "absent")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPutLargeSmallValueClearsStaleChunks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestChunked()

	require.NoError(t, c.PutLarge(ctx, "payload", strings.Repeat("c", testChunkSize*2), time.Minute))
	require.NoError(t, c.PutLarge(ctx, "payload", "tiny", time.Minute))

	meta, err := store.Get(ctx, "payload_meta")
	require.NoError(t, err)
	require.Empty(t, meta)

	got, err := c.GetLarge(ctx, "payload")
	require.NoError(t, err)
	require.Equal(t, "tiny", got)
}

func TestGetLargeCorruptMetaReadsAsAbsent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestChunked()

	require.NoError(t, store.Put(ctx, "payload_meta", "not-json", time.Minute))

	got, err := c.GetLarge(ctx, "payload")
	require.NoError(t, err)
	require.Empty(t, got)
}
