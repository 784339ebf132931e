package royale

import "github.com/clanforge/headhunter/internal/recruit"

// ClanMembersResponse is the payload of GET /clans/{tag}/members.
type ClanMembersResponse struct {
	Items []ClanMember `json:"items"`
}

// ClanMember carries the subset of member fields the baseline needs.
type ClanMember struct {
	Trophies int `json:"trophies"`
}

// TournamentSearchResponse is the payload of GET /tournaments?name=.
type TournamentSearchResponse struct {
	Items []recruit.Tournament `json:"items"`
}

// Player is the payload of GET /players/{tag}.
type Player struct {
	Tag               string `json:"tag"`
	Name              string `json:"name"`
	Trophies          int    `json:"trophies"`
	TotalDonations    int    `json:"totalDonations"`
	ChallengeCardsWon int    `json:"challengeCardsWon"`
	WarDayWins        int    `json:"warDayWins"`
}

// Battle is one entry of GET /players/{tag}/battlelog. Only the type
// matters for war-activity detection.
type Battle struct {
	Type string `json:"type"`
}

// War-related battle types that earn the war-activity bonus.
const (
	BattleTypeRiverRacePvP  = "riverRacePvP"
	BattleTypeBoatBattle    = "boatBattle"
	BattleTypeRiverRaceDuel = "riverRaceDuel"
)

// IsWarBattle reports whether the battle counts as river-race activity.
func (b Battle) IsWarBattle() bool {
	switch b.Type {
	case BattleTypeRiverRacePvP, BattleTypeBoatBattle, BattleTypeRiverRaceDuel:
		return true
	}
	return false
}
