// Package scanner implements the tournament discovery pipeline: search,
// sample, extract clanless players, profile them, and score war activity.
package scanner

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/blacklist"
	"github.com/clanforge/headhunter/internal/metrics"
	"github.com/clanforge/headhunter/internal/recruit"
	"github.com/clanforge/headhunter/internal/royale"
	"github.com/clanforge/headhunter/internal/scoring"
)

// Config tunes the scan pipeline.
type Config struct {
	// Keywords are the broad search terms fanned out in phase A.
	Keywords []string
	// LotteryWindow is the capacity-sorted window shuffled before sampling.
	LotteryWindow int
	// SampleSize is the number of tournaments actually detail-fetched.
	SampleSize int
	// MinMembers discards near-empty rooms whose data is unreliable.
	MinMembers int
	// ProfileCap bounds the deep player lookups per run.
	ProfileCap int
	// WarBonus is added to a candidate's war score on any recent
	// river-race activity.
	WarBonus int
	// TimeBudget bounds the whole scan; exceeding it degrades to partial
	// results instead of failing.
	TimeBudget time.Duration
}

// DefaultConfig mirrors the tuning the fetch budget was sized for:
// 75 detail fetches + 50 profiles fits comfortably inside 400 calls.
func DefaultConfig() Config {
	return Config{
		Keywords:      []string{"clash", "royale", "war", "open", "free"},
		LotteryWindow: 200,
		SampleSize:    75,
		MinMembers:    10,
		ProfileCap:    50,
		WarBonus:      500,
		TimeBudget:    4 * time.Minute,
	}
}

// Result carries the scanned candidates and whether the run degraded.
type Result struct {
	Candidates []recruit.Candidate
	Partial    bool
	Counters   recruit.ScanCounters
}

// Scanner orchestrates the six-phase pipeline over the royale client.
type Scanner struct {
	client  *royale.Client
	weights scoring.Weights
	cfg     Config
	clock   recruit.Clock
	rng     *rand.Rand
	logger  *zap.Logger
}

// New builds a Scanner. The rand source is injectable so tests can assert
// deterministic sampling.
func New(client *royale.Client, weights scoring.Weights, cfg Config, clock recruit.Clock, rng *rand.Rand, logger *zap.Logger) *Scanner {
	if cfg.LotteryWindow <= 0 {
		cfg = DefaultConfig()
	}
	return &Scanner{
		client:  client,
		weights: weights,
		cfg:     cfg,
		clock:   clock,
		rng:     rng,
		logger:  logger,
	}
}

// scanState is threaded through the phases of one run.
type scanState struct {
	minTrophies int
	existing    map[string]recruit.Candidate
	blocked     blacklist.Snapshot

	searches      []*royale.TournamentSearchResponse
	sampledTags   []string
	details       []*recruit.Tournament
	candidateTags []string
	profiles      []*royale.Player
	candidates    []recruit.Candidate

	counters recruit.ScanCounters
}

type phase struct {
	name string
	run  func(ctx context.Context, st *scanState) error
}

// Scan runs the pipeline under the configured wall-clock budget. The
// deadline is checked at phase boundaries only; once exceeded, remaining
// phases are skipped and whatever partial results exist are returned.
// The only error that propagates is fatal credential exhaustion.
func (s *Scanner) Scan(ctx context.Context, minTrophies int, existing map[string]recruit.Candidate, blocked blacklist.Snapshot) (Result, error) {
	st := &scanState{
		minTrophies: minTrophies,
		existing:    existing,
		blocked:     blocked,
	}
	deadline := s.clock.Now().Add(s.cfg.TimeBudget)

	phases := []phase{
		{"search", s.phaseSearch},
		{"sample", s.phaseSample},
		{"details", s.phaseDetails},
		{"extract", s.phaseExtract},
		{"profiles", s.phaseProfiles},
		{"battlelogs", s.phaseBattleLogs},
	}

	partial := false
	for _, ph := range phases {
		if s.clock.Now().After(deadline) {
			s.logger.Warn("scan time budget exceeded, stopping early",
				zap.String("next_phase", ph.name),
			)
			partial = true
			break
		}
		start := s.clock.Now()
		err := ph.run(ctx, st)
		metrics.ObserveScanPhase(ph.name, s.clock.Now().Sub(start))
		if err != nil {
			return Result{Candidates: st.candidates, Partial: true, Counters: st.counters}, err
		}
		if st.done() {
			break
		}
	}

	return Result{Candidates: st.candidates, Partial: partial, Counters: st.counters}, nil
}

// done short-circuits the pipeline when an intermediate phase ran dry.
func (st *scanState) done() bool {
	if st.sampledTags != nil && len(st.sampledTags) == 0 {
		return true
	}
	return st.candidateTags != nil && len(st.candidateTags) == 0
}

// Phase A: one search per keyword, fanned out through the fetch engine.
func (s *Scanner) phaseSearch(ctx context.Context, st *scanState) error {
	s.logger.Info("broadcasting tournament search", zap.Strings("keywords", s.cfg.Keywords))
	searches, err := s.client.SearchTournaments(ctx, s.cfg.Keywords)
	if err != nil {
		return err
	}
	st.searches = searches
	return nil
}

// Phase B: dedupe by tag, then run the lottery (capacity sort, wide window,
// shuffle, narrow slice). Large rooms are favored without deterministically
// re-scanning the same few giants every run.
func (s *Scanner) phaseSample(_ context.Context, st *scanState) error {
	unique := make(map[string]recruit.Tournament)
	raw := 0
	for _, res := range st.searches {
		if res == nil {
			continue
		}
		for _, t := range res.Items {
			raw++
			// Accept everything here; the search endpoint often omits
			// player counts, so density is filtered after the detail fetch.
			unique[t.Tag] = t
		}
	}
	st.counters.TournamentsFound = len(unique)

	sorted := make([]recruit.Tournament, 0, len(unique))
	for _, t := range unique {
		sorted = append(sorted, t)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Capacity != sorted[j].Capacity {
			return sorted[i].Capacity > sorted[j].Capacity
		}
		return sorted[i].Tag < sorted[j].Tag
	})

	window := sorted[:min(s.cfg.LotteryWindow, len(sorted))]
	s.rng.Shuffle(len(window), func(i, j int) {
		window[i], window[j] = window[j], window[i]
	})

	picked := window[:min(s.cfg.SampleSize, len(window))]
	st.sampledTags = make([]string, len(picked))
	for i, t := range picked {
		st.sampledTags[i] = t.Tag
	}
	st.counters.TournamentsSampled = len(st.sampledTags)

	if len(st.sampledTags) == 0 {
		if raw > 0 {
			s.logger.Warn("deduplication reduced tournaments to zero", zap.Int("raw_hits", raw))
		} else {
			s.logger.Warn("zero tournaments returned, check API keys and quota")
		}
		return nil
	}
	s.logger.Info("tournament sample selected",
		zap.Int("raw_hits", raw),
		zap.Int("unique", len(unique)),
		zap.Int("sampled", len(st.sampledTags)),
	)
	return nil
}

// Phase C: full details (rosters) for the sampled tournaments.
func (s *Scanner) phaseDetails(ctx context.Context, st *scanState) error {
	details, err := s.client.TournamentDetails(ctx, st.sampledTags)
	if err != nil {
		return err
	}
	st.details = details
	return nil
}

// Phase D: keep dense rooms only, collect clanless non-blacklisted
// members, dedupe by tag.
func (s *Scanner) phaseExtract(_ context.Context, st *scanState) error {
	seen := make(map[string]struct{})
	tags := make([]string, 0, 64)
	for _, t := range st.details {
		if t == nil || len(t.Members) < s.cfg.MinMembers {
			continue
		}
		for _, m := range t.Members {
			if m.Clan != nil && m.Clan.Tag != "" {
				continue
			}
			if st.blocked.Contains(m.Tag) {
				continue
			}
			if _, dup := seen[m.Tag]; dup {
				continue
			}
			seen[m.Tag] = struct{}{}
			tags = append(tags, m.Tag)
		}
	}
	st.candidateTags = tags
	st.counters.CandidatesSeen = len(tags)
	s.logger.Info("clanless candidates extracted", zap.Int("count", len(tags)))
	return nil
}

// Phase E: bounded deep lookups, then the trophy filter. Candidates are
// provisionally scored without war input so a budget-exceeded run still
// returns something usable.
func (s *Scanner) phaseProfiles(ctx context.Context, st *scanState) error {
	tags := st.candidateTags[:min(s.cfg.ProfileCap, len(st.candidateTags))]
	profiles, err := s.client.Players(ctx, tags)
	if err != nil {
		return err
	}
	st.counters.ProfilesFetched = len(tags)

	now := s.clock.Now()
	for _, p := range profiles {
		if p == nil {
			continue
		}
		if p.Trophies < st.minTrophies {
			st.counters.RejectedLowTrophy++
			continue
		}
		st.profiles = append(st.profiles, p)
		st.candidates = append(st.candidates, recruit.Candidate{
			Tag:       p.Tag,
			Name:      p.Name,
			Trophies:  p.Trophies,
			Donations: p.TotalDonations,
			CardsWon:  p.ChallengeCardsWon,
			FoundDate: now,
			RawScore:  s.weights.RawScore(p.Trophies, p.TotalDonations, 0),
		})
	}
	st.counters.Accepted = len(st.candidates)
	s.logger.Info("profiles filtered",
		zap.Int("accepted", len(st.candidates)),
		zap.Int("rejected_low_trophy", st.counters.RejectedLowTrophy),
	)
	return nil
}

// Phase F: battle logs, war bonus, sticky memory, final raw scores.
func (s *Scanner) phaseBattleLogs(ctx context.Context, st *scanState) error {
	if len(st.profiles) == 0 {
		return nil
	}
	tags := make([]string, len(st.profiles))
	for i, p := range st.profiles {
		tags[i] = p.Tag
	}
	logs, err := s.client.BattleLogs(ctx, tags)
	if err != nil {
		return err
	}

	for i, p := range st.profiles {
		bonus := 0
		for _, b := range logs[i] {
			if b.IsWarBattle() {
				bonus = s.cfg.WarBonus
				break
			}
		}

		warScore := p.WarDayWins + bonus

		// Sticky memory: the battle log only holds the most recent
		// battles, so a bonus earned yesterday can vanish from the data
		// source. A higher previously stored war score wins.
		if prev, ok := st.existing[p.Tag]; ok && prev.WarScore > warScore {
			warScore = prev.WarScore
		}

		st.candidates[i].WarScore = warScore
		st.candidates[i].RawScore = s.weights.RawScore(p.Trophies, p.TotalDonations, warScore)
	}
	return nil
}
