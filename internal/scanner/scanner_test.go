package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/blacklist"
	"github.com/clanforge/headhunter/internal/recruit"
	"github.com/clanforge/headhunter/internal/royale"
	"github.com/clanforge/headhunter/internal/scoring"
)

// scriptedFetcher resolves URLs from a fixed table, nil for anything else.
type scriptedFetcher struct {
	responses map[string]string
	calls     []string
}

func (f *scriptedFetcher) FetchBatch(_ context.Context, urls []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(urls))
	for i, url := range urls {
		f.calls = append(f.calls, url)
		if body, ok := f.responses[url]; ok {
			out[i] = json.RawMessage(body)
		}
	}
	return out, nil
}

type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func testScannerConfig() Config {
	cfg := DefaultConfig()
	cfg.Keywords = []string{"clash"}
	cfg.LotteryWindow = 10
	cfg.SampleSize = 10
	cfg.MinMembers = 2
	return cfg
}

func memberJSON(tag, clanTag string) string {
	if clanTag == "" {
		return fmt.Sprintf(`{"tag":%q}`, tag)
	}
	return fmt.Sprintf(`{"tag":%q,"clan":{"tag":%q}}`, tag, clanTag)
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{responses: map[string]string{
		"/tournaments?name=clash": `{"items":[
			{"tag":"#T1","capacity":100},
			{"tag":"#T2","capacity":50}
		]}`,
		"/tournaments/%23T1": fmt.Sprintf(`{"tag":"#T1","capacity":100,"membersList":[%s,%s,%s,%s]}`,
			memberJSON("#P1", ""),
			memberJSON("#P2", "#SOMECLAN"),
			memberJSON("#P3", ""),
			memberJSON("#P4", ""),
		),
		// Below the density floor, never detail-extracted.
		"/tournaments/%23T2": fmt.Sprintf(`{"tag":"#T2","capacity":50,"membersList":[%s]}`,
			memberJSON("#P9", ""),
		),
		"/players/%23P1": `{"tag":"#P1","name":"Alpha","trophies":5000,"totalDonations":100,"challengeCardsWon":20,"warDayWins":5}`,
		"/players/%23P4": `{"tag":"#P4","name":"Delta","trophies":3000,"totalDonations":900,"challengeCardsWon":5,"warDayWins":0}`,
		"/players/%23P1/battlelog": `[
			{"type":"PvP"},
			{"type":"riverRacePvP"}
		]`,
	}}
}

func newTestScanner(fetcher royale.BatchFetcher, cfg Config, clock recruit.Clock) *Scanner {
	client := royale.NewClient(fetcher, "", zap.NewNop())
	return New(client, scoring.DefaultWeights(), cfg, clock, rand.New(rand.NewSource(7)), zap.NewNop())
}

func TestScanFullPipeline(t *testing.T) {
	t.Parallel()

	fetcher := newScriptedFetcher()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestScanner(fetcher, testScannerConfig(), clock)

	blocked := blacklist.Snapshot{ActiveTags: map[string]struct{}{"#P3": {}}}
	result, err := s.Scan(context.Background(), 4000, nil, blocked)
	require.NoError(t, err)
	require.False(t, result.Partial)

	// #P2 has a clan, #P3 is blacklisted, #P4 is under the trophy cutoff.
	require.Len(t, result.Candidates, 1)
	got := result.Candidates[0]
	require.Equal(t, "#P1", got.Tag)
	require.Equal(t, "Alpha", got.Name)
	require.Equal(t, 5000, got.Trophies)

	// 5 war day wins plus the 500 activity bonus.
	require.Equal(t, 505, got.WarScore)
	require.Equal(t, 5000+50+505*20, got.RawScore)

	require.Equal(t, 2, result.Counters.TournamentsFound)
	require.Equal(t, 2, result.Counters.TournamentsSampled)
	require.Equal(t, 2, result.Counters.CandidatesSeen)
	require.Equal(t, 1, result.Counters.RejectedLowTrophy)
	require.Equal(t, 1, result.Counters.Accepted)
}

func TestScanKeepsHigherStoredWarScore(t *testing.T) {
	t.Parallel()

	fetcher := newScriptedFetcher()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestScanner(fetcher, testScannerConfig(), clock)

	existing := map[string]recruit.Candidate{
		"#P1": {Tag: "#P1", WarScore: 600},
	}
	result, err := s.Scan(context.Background(), 4000, existing, blacklist.Snapshot{})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	require.Equal(t, 600, result.Candidates[0].WarScore)
	require.Equal(t, 5000+50+600*20, result.Candidates[0].RawScore)
}

func TestScanStopsWhenBudgetExceeded(t *testing.T) {
	t.Parallel()

	fetcher := newScriptedFetcher()
	// Every clock read advances a minute against a 30s budget, so the
	// first phase boundary already trips the deadline.
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), step: time.Minute}
	cfg := testScannerConfig()
	cfg.TimeBudget = 30 * time.Second
	s := newTestScanner(fetcher, cfg, clock)

	result, err := s.Scan(context.Background(), 4000, nil, blacklist.Snapshot{})
	require.NoError(t, err)
	require.True(t, result.Partial)
	require.Empty(t, result.Candidates)
	require.Empty(t, fetcher.calls)
}

func TestScanShortCircuitsOnEmptySample(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{responses: map[string]string{
		"/tournaments?name=clash": `{"items":[]}`,
	}}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestScanner(fetcher, testScannerConfig(), clock)

	result, err := s.Scan(context.Background(), 4000, nil, blacklist.Snapshot{})
	require.NoError(t, err)
	require.False(t, result.Partial)
	require.Empty(t, result.Candidates)
	// Only the keyword search went out; no detail or profile fetches.
	require.Len(t, fetcher.calls, 1)
}

func TestScanRespectsProfileCap(t *testing.T) {
	t.Parallel()

	fetcher := newScriptedFetcher()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := testScannerConfig()
	cfg.ProfileCap = 1
	s := newTestScanner(fetcher, cfg, clock)

	result, err := s.Scan(context.Background(), 0, nil, blacklist.Snapshot{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Counters.ProfilesFetched)
}
