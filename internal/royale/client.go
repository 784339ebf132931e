// Package royale wraps the fetch engine with typed accessors for the
// read-only game-data API.
package royale

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/recruit"
)

// BatchFetcher resolves URLs to parsed JSON bodies, nil for misses.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, urls []string) ([]json.RawMessage, error)
}

// Client builds endpoint URLs and decodes responses into typed records.
type Client struct {
	fetcher BatchFetcher
	baseURL string
	logger  *zap.Logger
}

// NewClient constructs a Client. baseURL has no trailing slash,
// e.g. "https://api.clashroyale.com/v1".
func NewClient(fetcher BatchFetcher, baseURL string, logger *zap.Logger) *Client {
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// ClanMembers fetches the member list of one clan.
func (c *Client) ClanMembers(ctx context.Context, clanTag string) (*ClanMembersResponse, error) {
	raws, err := c.fetcher.FetchBatch(ctx, []string{
		fmt.Sprintf("%s/clans/%s/members", c.baseURL, escapeTag(clanTag)),
	})
	if err != nil {
		return nil, err
	}
	out := decodeEach[ClanMembersResponse](raws, c.logger)
	return out[0], nil
}

// SearchTournaments issues one search per keyword, in parallel.
func (c *Client) SearchTournaments(ctx context.Context, keywords []string) ([]*TournamentSearchResponse, error) {
	urls := make([]string, len(keywords))
	for i, kw := range keywords {
		urls[i] = fmt.Sprintf("%s/tournaments?name=%s", c.baseURL, url.QueryEscape(kw))
	}
	raws, err := c.fetcher.FetchBatch(ctx, urls)
	if err != nil {
		return nil, err
	}
	return decodeEach[TournamentSearchResponse](raws, c.logger), nil
}

// TournamentDetails fetches full details (including rosters) per tag.
func (c *Client) TournamentDetails(ctx context.Context, tags []string) ([]*recruit.Tournament, error) {
	raws, err := c.fetcher.FetchBatch(ctx, c.tagURLs("/tournaments/%s", tags))
	if err != nil {
		return nil, err
	}
	return decodeEach[recruit.Tournament](raws, c.logger), nil
}

// Players fetches full player profiles per tag.
func (c *Client) Players(ctx context.Context, tags []string) ([]*Player, error) {
	raws, err := c.fetcher.FetchBatch(ctx, c.tagURLs("/players/%s", tags))
	if err != nil {
		return nil, err
	}
	return decodeEach[Player](raws, c.logger), nil
}

// BattleLogs fetches recent battle histories per player tag. Entries are
// nil where the log could not be resolved.
func (c *Client) BattleLogs(ctx context.Context, tags []string) ([][]Battle, error) {
	urls := c.tagURLs("/players/%s/battlelog", tags)
	raws, err := c.fetcher.FetchBatch(ctx, urls)
	if err != nil {
		return nil, err
	}
	logs := make([][]Battle, len(raws))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		var battles []Battle
		if err := json.Unmarshal(raw, &battles); err != nil {
			c.logger.Warn("battle log decode failed", zap.String("url", urls[i]), zap.Error(err))
			continue
		}
		logs[i] = battles
	}
	return logs, nil
}

func (c *Client) tagURLs(pattern string, tags []string) []string {
	urls := make([]string, len(tags))
	for i, tag := range tags {
		urls[i] = c.baseURL + fmt.Sprintf(pattern, escapeTag(tag))
	}
	return urls
}

// escapeTag encodes a player/tournament tag for use as a path segment
// ("#2ABC" -> "%232ABC").
func escapeTag(tag string) string {
	return url.QueryEscape(tag)
}

// decodeEach unmarshals each raw body into T, leaving nil for misses and
// malformed payloads.
func decodeEach[T any](raws []json.RawMessage, logger *zap.Logger) []*T {
	out := make([]*T, len(raws))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			logger.Warn("response decode failed", zap.Error(err))
			continue
		}
		out[i] = &v
	}
	return out
}
