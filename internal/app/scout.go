// Package app wires the discovery pipeline into scheduled scout runs and
// serves the pool to the HTTP layer.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/blacklist"
	"github.com/clanforge/headhunter/internal/cache"
	"github.com/clanforge/headhunter/internal/fetch"
	"github.com/clanforge/headhunter/internal/lock"
	"github.com/clanforge/headhunter/internal/metrics"
	"github.com/clanforge/headhunter/internal/pool"
	"github.com/clanforge/headhunter/internal/recruit"
	"github.com/clanforge/headhunter/internal/royale"
	"github.com/clanforge/headhunter/internal/scanner"
	"github.com/clanforge/headhunter/internal/scoring"
)

// ErrScanInProgress is returned when a run is requested while another run
// or a pool mutation holds the write lock.
var ErrScanInProgress = errors.New("a scan is already in progress")

const (
	// poolLock serializes scout runs and bulk invites; both rewrite the
	// roster wholesale.
	poolLock = "pool"

	webPayloadKey = "hh_web_payload"
	webPayloadTTL = 6 * time.Hour

	// defaultBaseline stands in for the clan trophy average when the clan
	// endpoint is unreachable or the roster is empty.
	defaultBaseline = 4000.0
)

// Config carries the scalar tuning for scout runs.
type Config struct {
	ClanTag      string
	TrophyFloor  int
	FillingRatio float64
	Topic        string
}

// Scout owns one clan's recruit discovery lifecycle.
type Scout struct {
	cfg      Config
	client   fetch.Doer
	keys     []recruit.APIKey
	fetchCfg fetch.Config
	scanCfg  scanner.Config
	weights  scoring.Weights
	baseURL  string

	blacklist *blacklist.Store
	pool      *pool.Manager
	webCache  *cache.Chunked
	publisher recruit.Publisher
	clock     recruit.Clock
	ids       recruit.IDGenerator
	locks     *lock.Registry
	logger    *zap.Logger
}

// NewScout assembles the orchestrator from its collaborators.
func NewScout(
	cfg Config,
	client fetch.Doer,
	keys []recruit.APIKey,
	fetchCfg fetch.Config,
	scanCfg scanner.Config,
	weights scoring.Weights,
	baseURL string,
	bl *blacklist.Store,
	pm *pool.Manager,
	webCache *cache.Chunked,
	publisher recruit.Publisher,
	clock recruit.Clock,
	ids recruit.IDGenerator,
	locks *lock.Registry,
	logger *zap.Logger,
) *Scout {
	return &Scout{
		cfg:       cfg,
		client:    client,
		keys:      keys,
		fetchCfg:  fetchCfg,
		scanCfg:   scanCfg,
		weights:   weights,
		baseURL:   baseURL,
		blacklist: bl,
		pool:      pm,
		webCache:  webCache,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		locks:     locks,
		logger:    logger,
	}
}

// Running reports whether the pool write lock is currently held.
func (s *Scout) Running() bool {
	return s.locks.Held(poolLock)
}

// Run executes one scout cycle under the pool write lock. Upstream flakiness
// degrades the run to partial results; only credential exhaustion fails it.
func (s *Scout) Run(ctx context.Context) (recruit.ScanReport, error) {
	var (
		report recruit.ScanReport
		err    error
	)
	ok := s.locks.TryRun(poolLock, func() {
		report, err = s.run(ctx)
	})
	if !ok {
		return recruit.ScanReport{}, ErrScanInProgress
	}
	return report, err
}

func (s *Scout) run(ctx context.Context) (recruit.ScanReport, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return recruit.ScanReport{}, fmt.Errorf("generate run id: %w", err)
	}
	started := s.clock.Now()
	logger := s.logger.With(zap.String("run_id", runID))
	logger.Info("scout run starting", zap.String("clan_tag", s.cfg.ClanTag))

	// Each run gets a fresh engine so the execution cache and fetch budget
	// reset, and a fresh rand for key selection and lottery sampling.
	rng := rand.New(rand.NewSource(started.UnixNano()))
	engine, err := fetch.NewEngine(s.client, s.keys, s.fetchCfg, logger, fetch.WithRand(rng))
	if err != nil {
		return recruit.ScanReport{}, fmt.Errorf("build fetch engine: %w", err)
	}
	client := royale.NewClient(engine, s.baseURL, logger)

	tracked, err := s.pool.Load(ctx)
	if err != nil {
		return s.finish(ctx, logger, recruit.ScanReport{
			RunID: runID, StartedAt: started, Status: recruit.ScanStatusFailed,
		}), err
	}

	// Invited candidates leave the tracked pool and feed the blacklist, so
	// the next merge cannot resurface them.
	invited := make([]recruit.Candidate, 0)
	for tag, c := range tracked {
		if c.Invited {
			invited = append(invited, c)
			delete(tracked, tag)
		}
	}
	snap, err := s.blacklist.UpdateAndReload(ctx, invited)
	if err != nil {
		return s.finish(ctx, logger, recruit.ScanReport{
			RunID: runID, StartedAt: started, Status: recruit.ScanStatusFailed,
		}), err
	}

	minTrophies := s.threshold(ctx, client, len(tracked), logger)

	sc := scanner.New(client, s.weights, s.scanCfg, s.clock, rng, logger)
	result, scanErr := sc.Scan(ctx, minTrophies, tracked, snap)
	if scanErr != nil {
		if errors.Is(scanErr, fetch.ErrKeyPoolExhausted) {
			return s.finish(ctx, logger, recruit.ScanReport{
				RunID: runID, StartedAt: started, Status: recruit.ScanStatusFailed,
				MinTrophies: minTrophies, Counters: result.Counters,
			}), scanErr
		}
		logger.Warn("scan degraded, keeping partial results", zap.Error(scanErr))
		result.Partial = true
	}

	final := s.pool.MergeAndRank(result.Candidates, tracked, snap.Benchmark)
	if err := s.pool.Persist(ctx, final); err != nil {
		return s.finish(ctx, logger, recruit.ScanReport{
			RunID: runID, StartedAt: started, Status: recruit.ScanStatusFailed,
			MinTrophies: minTrophies, Counters: result.Counters,
		}), err
	}
	s.refreshWebPayload(ctx, final, logger)

	newRecruits := 0
	for _, c := range final {
		if _, ok := tracked[c.Tag]; !ok {
			newRecruits++
		}
	}

	status := recruit.ScanStatusComplete
	if result.Partial {
		status = recruit.ScanStatusPartial
	}
	return s.finish(ctx, logger, recruit.ScanReport{
		RunID:       runID,
		Status:      status,
		StartedAt:   started,
		MinTrophies: minTrophies,
		PoolSize:    len(final),
		NewRecruits: newRecruits,
		Counters:    result.Counters,
	}), nil
}

// finish stamps the report, records metrics, and publishes the event.
func (s *Scout) finish(ctx context.Context, logger *zap.Logger, report recruit.ScanReport) recruit.ScanReport {
	report.FinishedAt = s.clock.Now()
	metrics.ObserveScan(string(report.Status))

	if s.publisher != nil && s.cfg.Topic != "" {
		if _, err := s.publisher.Publish(ctx, s.cfg.Topic, report); err != nil {
			logger.Warn("scan report publish failed", zap.Error(err))
		}
	}
	logger.Info("scout run finished",
		zap.String("status", string(report.Status)),
		zap.Int("pool_size", report.PoolSize),
		zap.Int("new_recruits", report.NewRecruits),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

// threshold derives the trophy cutoff for this run. The baseline is the
// clan's average trophy count; a pool still filling toward its target uses
// a relaxed fraction of it, a full pool demands the whole baseline. The
// configured floor always holds.
func (s *Scout) threshold(ctx context.Context, client *royale.Client, activePool int, logger *zap.Logger) int {
	baseline := defaultBaseline
	members, err := client.ClanMembers(ctx, s.cfg.ClanTag)
	if err != nil || members == nil || len(members.Items) == 0 {
		logger.Warn("clan baseline unavailable, using default",
			zap.Float64("baseline", baseline), zap.Error(err))
	} else {
		sum := 0
		for _, m := range members.Items {
			sum += m.Trophies
		}
		baseline = float64(sum) / float64(len(members.Items))
	}

	cutoff := baseline
	if activePool < s.pool.Target() {
		cutoff = baseline * s.cfg.FillingRatio
	}
	minTrophies := int(math.Round(cutoff))
	if minTrophies < s.cfg.TrophyFloor {
		minTrophies = s.cfg.TrophyFloor
	}
	logger.Info("trophy threshold set",
		zap.Float64("baseline", baseline),
		zap.Int("active_pool", activePool),
		zap.Int("min_trophies", minTrophies),
	)
	return minTrophies
}

// PoolPayload returns the cached JSON rendering of the pool, regenerating
// it from the roster on a cache miss.
func (s *Scout) PoolPayload(ctx context.Context) (string, error) {
	payload, err := s.webCache.GetLarge(ctx, webPayloadKey)
	if err != nil {
		return "", fmt.Errorf("read pool payload: %w", err)
	}
	if payload != "" {
		return payload, nil
	}

	// The roster already holds ranked rows with the performance scores the
	// last write computed; a miss just reserializes them.
	final, err := s.pool.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(final)
	if err != nil {
		return "", fmt.Errorf("marshal pool payload: %w", err)
	}
	payload = string(data)
	if err := s.webCache.PutLarge(ctx, webPayloadKey, payload, webPayloadTTL); err != nil {
		s.logger.Warn("pool payload cache write failed", zap.Error(err))
	}
	return payload, nil
}

// Invite marks the given tags invited under the pool write lock, feeding
// them to the blacklist immediately so a concurrent reader sees a coherent
// pool. It returns how many tags matched tracked candidates.
func (s *Scout) Invite(ctx context.Context, tags []string) (int, error) {
	var (
		updated int
		err     error
	)
	ok := s.locks.TryRun(poolLock, func() {
		updated, err = s.invite(ctx, tags)
	})
	if !ok {
		return 0, ErrScanInProgress
	}
	return updated, err
}

func (s *Scout) invite(ctx context.Context, tags []string) (int, error) {
	tracked, err := s.pool.Load(ctx)
	if err != nil {
		return 0, err
	}

	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}

	marked := make([]recruit.Candidate, 0, len(tags))
	for tag, c := range tracked {
		if _, ok := want[tag]; ok && !c.Invited {
			c.Invited = true
			tracked[tag] = c
			marked = append(marked, c)
		}
	}
	if len(marked) == 0 {
		return 0, nil
	}

	snap, err := s.blacklist.UpdateAndReload(ctx, marked)
	if err != nil {
		return 0, err
	}
	final := s.pool.MergeAndRank(nil, tracked, snap.Benchmark)
	if err := s.pool.Persist(ctx, final); err != nil {
		return 0, err
	}
	s.refreshWebPayload(ctx, final, s.logger)
	s.logger.Info("candidates marked invited", zap.Int("count", len(marked)))
	return len(marked), nil
}

func (s *Scout) refreshWebPayload(ctx context.Context, final []recruit.Candidate, logger *zap.Logger) {
	data, err := json.Marshal(final)
	if err != nil {
		logger.Warn("pool payload marshal failed", zap.Error(err))
		return
	}
	if err := s.webCache.PutLarge(ctx, webPayloadKey, string(data), webPayloadTTL); err != nil {
		logger.Warn("pool payload cache write failed", zap.Error(err))
	}
}
