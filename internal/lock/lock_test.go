package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryRunExecutesWhenFree(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	ran := false
	require.True(t, r.TryRun("pool", func() { ran = true }))
	require.True(t, ran)
	require.False(t, r.Held("pool"))
}

func TestTryRunRejectsWhileHeld(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	inside := make(chan struct{})
	release := make(chan struct{})
	go r.TryRun("pool", func() {
		close(inside)
		<-release
	})
	<-inside

	require.True(t, r.Held("pool"))
	require.False(t, r.TryRun("pool", func() {
		t.Error("must not run while the lock is held")
	}))
	close(release)
}

func TestIndependentNamesDoNotBlock(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	inside := make(chan struct{})
	release := make(chan struct{})
	go r.TryRun("scan", func() {
		close(inside)
		<-release
	})
	<-inside

	require.True(t, r.TryRun("other", func() {}))
	close(release)
}

func TestTryRunReleasesAfterConcurrentBursts(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	var mu sync.Mutex
	ran := 0
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.TryRun("pool", func() {
				mu.Lock()
				ran++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	require.False(t, r.Held("pool"))
	require.Greater(t, ran, 0)
}
