// Package pool merges scan results with the tracked recruit pool, ranks
// the union, and persists the truncated shortlist.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/metrics"
	"github.com/clanforge/headhunter/internal/recruit"
	"github.com/clanforge/headhunter/internal/scoring"
)

// Manager owns the recruit pool lifecycle around one scout run.
type Manager struct {
	roster  recruit.RosterStore
	blobs   recruit.BlobStore
	clock   recruit.Clock
	weights scoring.Weights
	target  int
	logger  *zap.Logger
}

// NewManager builds a Manager with the configured target pool size.
func NewManager(roster recruit.RosterStore, blobs recruit.BlobStore, clock recruit.Clock, weights scoring.Weights, target int, logger *zap.Logger) *Manager {
	return &Manager{
		roster:  roster,
		blobs:   blobs,
		clock:   clock,
		weights: weights,
		target:  target,
		logger:  logger,
	}
}

// Target returns the configured pool size.
func (m *Manager) Target() int {
	return m.target
}

// Snapshot reads the persisted shortlist in rank order. The stored rows
// keep the performance scores they were written with; rescoring belongs
// to MergeAndRank, which has the blacklist benchmark at hand.
func (m *Manager) Snapshot(ctx context.Context) ([]recruit.Candidate, error) {
	rows, err := m.roster.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	sortByRank(rows)
	return rows, nil
}

// Load reads the tracked pool keyed by tag.
func (m *Manager) Load(ctx context.Context) (map[string]recruit.Candidate, error) {
	rows, err := m.roster.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	tracked := make(map[string]recruit.Candidate, len(rows))
	for _, c := range rows {
		tracked[c.Tag] = c
	}
	return tracked, nil
}

// MergeAndRank unions scanned candidates with the tracked pool, ranks by
// raw score, truncates to the target size, and recomputes performance
// scores against the benchmark anchor.
//
// Merge rules: a re-observed candidate keeps its original foundDate and
// invited flag, and its war score never decays; every other field takes
// the freshly scanned value. Ranking uses raw scores because new
// candidates have no performance score yet.
func (m *Manager) MergeAndRank(scanned []recruit.Candidate, tracked map[string]recruit.Candidate, benchmark float64) []recruit.Candidate {
	merged := make(map[string]recruit.Candidate, len(tracked)+len(scanned))
	for tag, c := range tracked {
		merged[tag] = c
	}
	for _, c := range scanned {
		if prev, ok := merged[c.Tag]; ok {
			c.FoundDate = prev.FoundDate
			c.Invited = prev.Invited
			if prev.WarScore > c.WarScore {
				// A restored war score must feed back into the ranking, or a
				// run that skipped battle logs would sink the candidate.
				c.WarScore = prev.WarScore
				c.RawScore = m.weights.RawScore(c.Trophies, c.Donations, c.WarScore)
			}
		}
		merged[c.Tag] = c
	}

	final := make([]recruit.Candidate, 0, len(merged))
	for _, c := range merged {
		final = append(final, c)
	}
	sortByRank(final)
	final = final[:min(m.target, len(final))]

	top := 0
	if len(final) > 0 {
		top = final[0].RawScore
	}
	anchor := scoring.Anchor(benchmark, top)
	for i := range final {
		final[i].PerfScore = scoring.PerfScore(final[i].RawScore, anchor)
	}
	return final
}

func sortByRank(rows []recruit.Candidate) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].RawScore != rows[j].RawScore {
			return rows[i].RawScore > rows[j].RawScore
		}
		return rows[i].Tag < rows[j].Tag
	})
}

// Persist snapshots the current roster to the blob store, then replaces it
// with the new pool. The backup guards against partial-write corruption;
// snapshot failures are logged but never block the write.
func (m *Manager) Persist(ctx context.Context, final []recruit.Candidate) error {
	m.backup(ctx)

	if err := m.roster.Replace(ctx, final); err != nil {
		return fmt.Errorf("replace roster: %w", err)
	}
	metrics.SetPoolSize(len(final))
	m.logger.Info("recruit pool written", zap.Int("size", len(final)))
	return nil
}

func (m *Manager) backup(ctx context.Context) {
	current, err := m.roster.Load(ctx)
	if err != nil {
		m.logger.Warn("backup skipped, roster load failed", zap.Error(err))
		return
	}
	if len(current) == 0 {
		return
	}
	data, err := json.Marshal(current)
	if err != nil {
		m.logger.Warn("backup skipped, marshal failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("backups/roster-%s.json", m.clock.Now().UTC().Format(time.RFC3339))
	uri, err := m.blobs.PutObject(ctx, path, "application/json", data)
	if err != nil {
		m.logger.Warn("backup snapshot failed", zap.Error(err))
		return
	}
	m.logger.Info("roster backup written", zap.String("uri", uri))
}
