// Package fetch implements the batched, credential-rotating HTTP engine
// used for all outbound game-API reads.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/metrics"
	"github.com/clanforge/headhunter/internal/recruit"
)

// ErrKeyPoolExhausted aborts the run: every credential was rejected and no
// further requests can be authenticated.
var ErrKeyPoolExhausted = errors.New("fetch: all API keys exhausted")

// Doer abstracts *http.Client for testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config controls Engine behavior.
type Config struct {
	// BatchSize is the number of URLs issued concurrently per chunk.
	BatchSize int
	// MaxFetches is the per-run quota budget; once exceeded, FetchBatch
	// returns all-nil without touching the network.
	MaxFetches int
	// InterChunkDelay smooths burst load between chunks.
	InterChunkDelay time.Duration
	Retry           RetryPolicy
	UserAgent       string
}

// DefaultConfig mirrors the tuning the scanner was sized for:
// 10-wide batches, 400 fetches per run.
func DefaultConfig() Config {
	return Config{
		BatchSize:       10,
		MaxFetches:      400,
		InterChunkDelay: 200 * time.Millisecond,
		Retry:           DefaultRetryPolicy(),
		UserAgent:       "headhunterd/1.0",
	}
}

// Engine executes deduplicated, batched GETs against the game API.
//
// An Engine is created once per invocation and never shared across runs:
// the execution cache, the fetch counter, and the live key pool are all
// run-scoped state. It is not safe for concurrent use.
type Engine struct {
	client Doer
	keys   []recruit.APIKey
	cfg    Config
	logger *zap.Logger

	cache   map[string]json.RawMessage
	fetched int

	rng   *rand.Rand
	sleep func(time.Duration)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRand injects the randomness source used for key selection.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithSleep replaces the backoff sleeper (tests).
func WithSleep(fn func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = fn }
}

// NewEngine builds a run-scoped Engine over the given credential pool.
func NewEngine(client Doer, keys []recruit.APIKey, cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if len(keys) == 0 {
		return nil, errors.New("fetch: no API keys configured")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	e := &Engine{
		client: client,
		keys:   append([]recruit.APIKey(nil), keys...),
		cfg:    cfg,
		logger: logger,
		cache:  make(map[string]json.RawMessage),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// LiveKeys reports how many credentials remain usable this run.
func (e *Engine) LiveKeys() int {
	return len(e.keys)
}

// FetchBatch resolves every URL to a parsed JSON body or nil, preserving
// input order. A URL resolves to nil on 404, exhausted retries, or when
// the run's fetch budget is spent. The only returned error is
// ErrKeyPoolExhausted; everything else degrades to nil entries.
func (e *Engine) FetchBatch(ctx context.Context, urls []string) ([]json.RawMessage, error) {
	results := make([]json.RawMessage, len(urls))
	if len(urls) == 0 {
		return results, nil
	}

	if e.fetched > e.cfg.MaxFetches {
		e.logger.Error("API budget exceeded, aborting further fetches",
			zap.Int("fetched", e.fetched),
			zap.Int("budget", e.cfg.MaxFetches),
		)
		metrics.ObserveBudgetAbort()
		return results, nil
	}
	e.fetched += len(urls)

	// Cache check and deduplication: repeated URLs resolve from the
	// execution cache and cost zero network requests.
	urlIndices := make(map[string][]int)
	var toFetch []string
	for i, url := range urls {
		if cached, ok := e.cache[url]; ok {
			results[i] = cached
			metrics.ObserveCacheHit()
			continue
		}
		if _, seen := urlIndices[url]; !seen {
			toFetch = append(toFetch, url)
		}
		urlIndices[url] = append(urlIndices[url], i)
	}
	if len(toFetch) == 0 {
		return results, nil
	}

	for start := 0; start < len(toFetch); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(toFetch))
		if err := e.fetchChunk(ctx, toFetch[start:end]); err != nil {
			return results, err
		}
		if end < len(toFetch) {
			e.sleep(e.cfg.InterChunkDelay)
		}
	}

	for url, indices := range urlIndices {
		body, ok := e.cache[url]
		if !ok {
			continue
		}
		for _, i := range indices {
			results[i] = body
		}
	}
	return results, nil
}

type chunkResult struct {
	url    string
	key    recruit.APIKey
	status int
	body   []byte
	err    error
}

// fetchChunk resolves one chunk of URLs, retrying while any response is
// retryable and the key pool holds at least one credential.
func (e *Engine) fetchChunk(ctx context.Context, chunk []string) error {
	pending := chunk
	for attempt := 0; attempt < e.cfg.Retry.MaxAttempts; attempt++ {
		if len(e.keys) == 0 {
			return ErrKeyPoolExhausted
		}

		outcomes := e.issue(ctx, pending)
		var retry []string
		for _, out := range outcomes {
			if e.resolve(out) {
				retry = append(retry, out.url)
			}
		}

		if len(retry) == 0 {
			return nil
		}
		pending = retry
		if attempt < e.cfg.Retry.MaxAttempts-1 {
			e.sleep(e.cfg.Retry.Backoff(attempt))
		}
	}
	if len(e.keys) == 0 {
		return ErrKeyPoolExhausted
	}
	e.logger.Warn("chunk retries exhausted", zap.Int("unresolved", len(pending)))
	return nil
}

// issue fans out one concurrent batch, each request signed with a key
// drawn uniformly from the live pool.
func (e *Engine) issue(ctx context.Context, urls []string) []chunkResult {
	outcomes := make([]chunkResult, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		key := e.keys[e.rng.Intn(len(e.keys))]
		outcomes[i] = chunkResult{url: url, key: key}
		wg.Add(1)
		go func(out *chunkResult) {
			defer wg.Done()
			out.status, out.body, out.err = e.get(ctx, out.url, out.key)
		}(&outcomes[i])
	}
	wg.Wait()
	return outcomes
}

func (e *Engine) get(ctx context.Context, url string, key recruit.APIKey) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key.Value)
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// resolve caches a final outcome or reports that the URL needs a retry.
func (e *Engine) resolve(out chunkResult) (retry bool) {
	switch {
	case out.err != nil:
		e.logger.Warn("fetch network error", zap.String("url", out.url), zap.Error(out.err))
		metrics.ObserveAPIFetch("error")
		return true

	case out.status == http.StatusOK:
		if !json.Valid(out.body) {
			e.logger.Warn("JSON parse error", zap.String("url", out.url))
			metrics.ObserveAPIFetch("parse_error")
			return true
		}
		e.cache[out.url] = json.RawMessage(out.body)
		metrics.ObserveAPIFetch("ok")
		return false

	case out.status == http.StatusNotFound:
		// Absent resources are data, not failures; cache the miss.
		e.cache[out.url] = nil
		metrics.ObserveAPIFetch("not_found")
		return false

	case out.status == http.StatusForbidden || out.status == http.StatusTooManyRequests:
		e.evictKey(out.key, out.status)
		metrics.ObserveAPIFetch("rejected")
		return true

	case out.status >= 500:
		e.logger.Warn("API server error", zap.String("url", out.url), zap.Int("status", out.status))
		metrics.ObserveAPIFetch("server_error")
		return true

	default:
		e.logger.Warn("unexpected API status", zap.String("url", out.url), zap.Int("status", out.status))
		metrics.ObserveAPIFetch("unexpected")
		return false
	}
}

// evictKey removes a rejected credential for the remainder of the run.
func (e *Engine) evictKey(bad recruit.APIKey, status int) {
	for i, key := range e.keys {
		if key.Value == bad.Value {
			e.logger.Warn("evicting API key",
				zap.String("key", key.Name),
				zap.Int("status", status),
				zap.Int("remaining", len(e.keys)-1),
			)
			e.keys = append(e.keys[:i], e.keys[i+1:]...)
			metrics.ObserveKeyEviction()
			return
		}
	}
}
