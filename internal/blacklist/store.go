// Package blacklist suppresses recently invited candidates and derives the
// benchmark anchor from their historical scores.
package blacklist

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/cache"
	"github.com/clanforge/headhunter/internal/metrics"
	"github.com/clanforge/headhunter/internal/recruit"
)

const (
	propertyKey      = "hh_blacklist"
	benchmarkTopN    = 3
	DefaultRetention = 7 * 24 * time.Hour
)

// persistedEntry is the compact wire shape stored per tag.
type persistedEntry struct {
	Expiry int64 `json:"e"` // unix milliseconds
	Score  int   `json:"s"`
}

// Snapshot is the result of one update cycle.
type Snapshot struct {
	// ActiveTags are all unexpired blacklisted tags, excluded from scans.
	ActiveTags map[string]struct{}
	// Benchmark is the mean raw score of the top entries, 0 when empty.
	Benchmark float64
}

// Contains reports whether tag is actively suppressed.
func (s Snapshot) Contains(tag string) bool {
	_, ok := s.ActiveTags[tag]
	return ok
}

// Store persists the tag -> (expiry, score) map.
type Store struct {
	props     *cache.Props
	clock     recruit.Clock
	retention time.Duration
	logger    *zap.Logger
}

// NewStore builds a Store. A non-positive retention falls back to the
// default seven days.
func NewStore(props *cache.Props, clock recruit.Clock, retention time.Duration, logger *zap.Logger) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{props: props, clock: clock, retention: retention, logger: logger}
}

// UpdateAndReload prunes expired entries, ingests freshly invited
// candidates, persists the survivors, and returns the active tag set plus
// the benchmark anchor. A candidate already present keeps the maximum of
// its stored and new score; its expiry is refreshed.
func (s *Store) UpdateAndReload(ctx context.Context, invited []recruit.Candidate) (Snapshot, error) {
	entries := make(map[string]persistedEntry)
	// Corrupt or absent state reads as empty; suppression history is
	// recoverable, losing a run's worth is acceptable.
	if _, err := s.props.GetChunked(ctx, propertyKey, &entries); err != nil {
		return Snapshot{}, fmt.Errorf("load blacklist: %w", err)
	}

	now := s.clock.Now()
	nowMs := now.UnixMilli()
	initial := len(entries)

	for tag, entry := range entries {
		if entry.Expiry <= nowMs {
			delete(entries, tag)
		}
	}
	pruned := initial - len(entries)

	changed := pruned > 0
	expiry := now.Add(s.retention).UnixMilli()
	for _, c := range invited {
		entry, ok := entries[c.Tag]
		if ok {
			// Monotonic score: the benchmark never regresses.
			if c.RawScore > entry.Score {
				entry.Score = c.RawScore
			}
		} else {
			entry = persistedEntry{Score: c.RawScore}
		}
		entry.Expiry = expiry
		entries[c.Tag] = entry
		changed = true
	}

	if changed || len(entries) > 0 {
		if err := s.props.SetChunked(ctx, propertyKey, entries); err != nil {
			// Save failures degrade: the run continues with the in-memory view.
			s.logger.Warn("blacklist save failed", zap.Error(err))
		} else {
			s.logger.Info("blacklist updated",
				zap.Int("active", len(entries)),
				zap.Int("pruned", pruned),
			)
		}
	}
	metrics.SetBlacklistActive(len(entries))

	return s.snapshot(entries), nil
}

func (s *Store) snapshot(entries map[string]persistedEntry) Snapshot {
	tags := make(map[string]struct{}, len(entries))
	scores := make([]int, 0, len(entries))
	for tag, entry := range entries {
		tags[tag] = struct{}{}
		scores = append(scores, entry.Score)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(scores)))

	top := min(benchmarkTopN, len(scores))
	if top == 0 {
		return Snapshot{ActiveTags: tags}
	}
	sum := 0
	for _, score := range scores[:top] {
		sum += score
	}
	return Snapshot{
		ActiveTags: tags,
		Benchmark:  float64(sum) / float64(top),
	}
}
