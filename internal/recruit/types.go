// Package recruit defines the core types shared across the scouting pipeline.
package recruit

import "time"

// Candidate is one prospective member tracked in the recruit pool.
type Candidate struct {
	Tag       string    `json:"tag"`
	Name      string    `json:"name"`
	Trophies  int       `json:"trophies"`
	Donations int       `json:"donations"`
	CardsWon  int       `json:"cards_won"`
	WarScore  int       `json:"war_score"`
	RawScore  int       `json:"raw_score"`
	PerfScore int       `json:"perf_score"`
	FoundDate time.Time `json:"found_date"`
	Invited   bool      `json:"invited"`
}

// BlacklistEntry suppresses a recently invited candidate until it expires.
// The score is the highest raw score ever recorded for that tag; it feeds
// the benchmark anchor.
type BlacklistEntry struct {
	Tag    string
	Expiry time.Time
	Score  int
}

// Tournament is a scan-scoped search hit. Members is populated only after
// the detail fetch.
type Tournament struct {
	Tag      string             `json:"tag"`
	Capacity int                `json:"capacity"`
	Members  []TournamentMember `json:"membersList"`
}

// TournamentMember is a roster entry inside a tournament detail response.
type TournamentMember struct {
	Tag  string `json:"tag"`
	Clan *struct {
		Tag string `json:"tag"`
	} `json:"clan,omitempty"`
}

// APIKey is one credential in the rotating pool.
type APIKey struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
}

// ScanStatus describes how a scout run ended.
type ScanStatus string

// Scan status values carried in run reports.
const (
	ScanStatusComplete ScanStatus = "complete"
	ScanStatusPartial  ScanStatus = "partial"
	ScanStatusFailed   ScanStatus = "failed"
)

// ScanCounters tracks per-phase stats for one scout run.
type ScanCounters struct {
	TournamentsFound   int `json:"tournaments_found"`
	TournamentsSampled int `json:"tournaments_sampled"`
	CandidatesSeen     int `json:"candidates_seen"`
	ProfilesFetched    int `json:"profiles_fetched"`
	RejectedLowTrophy  int `json:"rejected_low_trophy"`
	Accepted           int `json:"accepted"`
}

// ScanReport summarizes a completed scout run for logging and publishing.
type ScanReport struct {
	RunID       string       `json:"run_id"`
	Status      ScanStatus   `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	MinTrophies int          `json:"min_trophies"`
	PoolSize    int          `json:"pool_size"`
	NewRecruits int          `json:"new_recruits"`
	Counters    ScanCounters `json:"counters"`
}
