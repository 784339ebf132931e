package fetch

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/recruit"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// countingDoer tracks per-URL hits and serves scripted responses in order,
// repeating the last one.
type countingDoer struct {
	mu        sync.Mutex
	hits      map[string]int
	responses map[string][]*http.Response
}

func newCountingDoer() *countingDoer {
	return &countingDoer{
		hits:      make(map[string]int),
		responses: make(map[string][]*http.Response),
	}
}

func (d *countingDoer) respond(url string, resps ...*http.Response) {
	d.responses[url] = append(d.responses[url], resps...)
}

func (d *countingDoer) Do(r *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	url := r.URL.String()
	n := d.hits[url]
	d.hits[url] = n + 1
	script := d.responses[url]
	if len(script) == 0 {
		return httpResponse(http.StatusOK, `{}`), nil
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], nil
}

func (d *countingDoer) hitCount(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits[url]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InterChunkDelay = 0
	return cfg
}

func newTestEngine(t *testing.T, client Doer, keys []recruit.APIKey, cfg Config) *Engine {
	t.Helper()
	engine, err := NewEngine(client, keys, cfg, zap.NewNop(),
		WithRand(rand.New(rand.NewSource(1))),
		WithSleep(func(time.Duration) {}),
	)
	require.NoError(t, err)
	return engine
}

func singleKey() []recruit.APIKey {
	return []recruit.APIKey{{Name: "primary", Value: "token-a"}}
}

func TestNewEngineRequiresKeys(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(doerFunc(nil), nil, DefaultConfig(), zap.NewNop())
	require.Error(t, err)
}

func TestFetchBatchDeduplicatesAndPreservesOrder(t *testing.T) {
	t.Parallel()

	doer := newCountingDoer()
	doer.respond("https://api.test/a", httpResponse(http.StatusOK, `{"v":"a"}`))
	doer.respond("https://api.test/b", httpResponse(http.StatusOK, `{"v":"b"}`))

	engine := newTestEngine(t, doer, singleKey(), testConfig())
	results, err := engine.FetchBatch(context.Background(),
		[]string{"https://api.test/a", "https://api.test/b", "https://api.test/a"})
	require.NoError(t, err)

	require.Len(t, results, 3)
	require.JSONEq(t, `{"v":"a"}`, string(results[0]))
	require.JSONEq(t, `{"v":"b"}`, string(results[1]))
	require.JSONEq(t, `{"v":"a"}`, string(results[2]))
	require.Equal(t, 1, doer.hitCount("https://api.test/a"))
	require.Equal(t, 1, doer.hitCount("https://api.test/b"))
}

func TestFetchBatchServesRepeatCallsFromCache(t *testing.T) {
	t.Parallel()

	doer := newCountingDoer()
	doer.respond("https://api.test/a", httpResponse(http.StatusOK, `{"v":"a"}`))

	engine := newTestEngine(t, doer, singleKey(), testConfig())

	_, err := engine.FetchBatch(context.Background(), []string{"https://api.test/a"})
	require.NoError(t, err)
	results, err := engine.FetchBatch(context.Background(), []string{"https://api.test/a"})
	require.NoError(t, err)

	require.JSONEq(t, `{"v":"a"}`, string(results[0]))
	require.Equal(t, 1, doer.hitCount("https://api.test/a"))
}

func TestFetchBatchBudgetAbortReturnsAllNil(t *testing.T) {
	t.Parallel()

	doer := newCountingDoer()
	cfg := testConfig()
	cfg.MaxFetches = 2
	engine := newTestEngine(t, doer, singleKey(), cfg)

	_, err := engine.FetchBatch(context.Background(),
		[]string{"https://api.test/a", "https://api.test/b", "https://api.test/c"})
	require.NoError(t, err)

	// Budget is now spent; the next batch must not touch the network.
	results, err := engine.FetchBatch(context.Background(), []string{"https://api.test/d"})
	require.NoError(t, err)
	require.Nil(t, results[0])
	require.Equal(t, 0, doer.hitCount("https://api.test/d"))
}

func TestFetchBatchCachesNotFoundAsNil(t *testing.T) {
	t.Parallel()

	doer := newCountingDoer()
	doer.respond("https://api.test/missing", httpResponse(http.StatusNotFound, `{"reason":"notFound"}`))

	engine := newTestEngine(t, doer, singleKey(), testConfig())
	results, err := engine.FetchBatch(context.Background(), []string{"https://api.test/missing"})
	require.NoError(t, err)

	require.Nil(t, results[0])
	require.Equal(t, 1, doer.hitCount("https://api.test/missing"))
}

func TestFetchBatchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	doer := newCountingDoer()
	doer.respond("https://api.test/flaky",
		httpResponse(http.StatusInternalServerError, ""),
		httpResponse(http.StatusOK, `{"v":"ok"}`),
	)

	engine := newTestEngine(t, doer, singleKey(), testConfig())
	results, err := engine.FetchBatch(context.Background(), []string{"https://api.test/flaky"})
	require.NoError(t, err)

	require.JSONEq(t, `{"v":"ok"}`, string(results[0]))
	require.Equal(t, 2, doer.hitCount("https://api.test/flaky"))
}

func TestFetchBatchRetriesInvalidJSON(t *testing.T) {
	t.Parallel()

	doer := newCountingDoer()
	doer.respond("https://api.test/garbled",
		httpResponse(http.StatusOK, `<html>maintenance</html>`),
		httpResponse(http.StatusOK, `{"v":"ok"}`),
	)

	engine := newTestEngine(t, doer, singleKey(), testConfig())
	results, err := engine.FetchBatch(context.Background(), []string{"https://api.test/garbled"})
	require.NoError(t, err)

	require.JSONEq(t, `{"v":"ok"}`, string(results[0]))
}

func TestFetchBatchEvictsRejectedKeyAndRecovers(t *testing.T) {
	t.Parallel()

	keys := []recruit.APIKey{
		{Name: "revoked", Value: "token-bad"},
		{Name: "healthy", Value: "token-good"},
	}
	// The bad key is rejected with 429 wherever it is used; the good key
	// always succeeds.
	doer := doerFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("Authorization") == "Bearer token-bad" {
			return httpResponse(http.StatusTooManyRequests, ""), nil
		}
		return httpResponse(http.StatusOK, `{"v":"ok"}`), nil
	})

	engine := newTestEngine(t, doer, keys, testConfig())
	results, err := engine.FetchBatch(context.Background(),
		[]string{"https://api.test/a", "https://api.test/b", "https://api.test/c"})
	require.NoError(t, err)

	for _, res := range results {
		require.JSONEq(t, `{"v":"ok"}`, string(res))
	}
	require.LessOrEqual(t, engine.LiveKeys(), 2)
}

func TestFetchBatchFailsWhenAllKeysRejected(t *testing.T) {
	t.Parallel()

	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		return httpResponse(http.StatusForbidden, ""), nil
	})

	engine := newTestEngine(t, doer, singleKey(), testConfig())
	_, err := engine.FetchBatch(context.Background(), []string{"https://api.test/a"})
	require.ErrorIs(t, err, ErrKeyPoolExhausted)
	require.Zero(t, engine.LiveKeys())
}

func TestBackoffGrowsLinearly(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	require.Equal(t, time.Second, policy.Backoff(0))
	require.Equal(t, 2*time.Second, policy.Backoff(1))
	require.Equal(t, 3*time.Second, policy.Backoff(2))
}
