// Package catalog fetches candidate decks from a song catalog service. The
// fetch happens once, before a game starts; nothing here runs on the per-turn
// path.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/beatably/internal/game"
)

// Filters narrows the candidate deck to player-chosen criteria.
type Filters struct {
	Genres          []string
	YearMin         int
	YearMax         int
	Markets         []string
	DifficultyFloor int
	Limit           int
}

// Provider supplies an ordered, deduplicated candidate deck.
type Provider interface {
	FetchCandidateDeck(ctx context.Context, f Filters) ([]game.Track, error)
}

// HTTPProvider queries a catalog endpoint over HTTP.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTP returns a provider against the given base URL.
func NewHTTP(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type trackPayload struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Year       int    `json:"year"`
	MediaRef   string `json:"media_ref"`
	Popularity int    `json:"popularity"`
}

// FetchCandidateDeck queries the catalog and returns a validated, deduplicated
// track list in the order the catalog chose.
func (p *HTTPProvider) FetchCandidateDeck(ctx context.Context, f Filters) ([]game.Track, error) {
	q := url.Values{}
	if len(f.Genres) > 0 {
		q.Set("genres", strings.Join(f.Genres, ","))
	}
	if f.YearMin > 0 {
		q.Set("year_min", strconv.Itoa(f.YearMin))
	}
	if f.YearMax > 0 {
		q.Set("year_max", strconv.Itoa(f.YearMax))
	}
	if len(f.Markets) > 0 {
		q.Set("markets", strings.Join(f.Markets, ","))
	}
	if f.DifficultyFloor > 0 {
		q.Set("min_popularity", strconv.Itoa(f.DifficultyFloor))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	endpoint := p.baseURL + "/tracks"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog fetch: unexpected status %d", resp.StatusCode)
	}

	var payload []trackPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("catalog fetch: %w", err)
	}

	seen := make(map[string]bool, len(payload))
	tracks := make([]game.Track, 0, len(payload))
	for _, t := range payload {
		if t.ID == "" || t.Title == "" || t.Artist == "" || t.Year == 0 || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		tracks = append(tracks, game.Track{
			ID:         t.ID,
			Title:      t.Title,
			Artist:     t.Artist,
			Year:       t.Year,
			MediaRef:   t.MediaRef,
			Popularity: t.Popularity,
		})
	}

	if len(tracks) == 0 {
		return nil, fmt.Errorf("catalog fetch: no usable tracks for filters")
	}

	return tracks, nil
}

// Static serves a fixed track list, for tests and offline play.
type Static struct {
	Tracks []game.Track
}

func (s *Static) FetchCandidateDeck(_ context.Context, f Filters) ([]game.Track, error) {
	out := make([]game.Track, 0, len(s.Tracks))
	for _, t := range s.Tracks {
		if f.YearMin > 0 && t.Year < f.YearMin {
			continue
		}
		if f.YearMax > 0 && t.Year > f.YearMax {
			continue
		}
		if f.DifficultyFloor > 0 && t.Popularity < f.DifficultyFloor {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tracks match filters")
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
