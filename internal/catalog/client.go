// Package catalog wraps the Spotify Web API into the three lookups the
// enrichment engine needs: text search, track detail, and artist detail
// for genre, plus the recently-played history used during session
// reconciliation. All provider failures are absorbed and reported as
// absence; callers never see an error.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/time/rate"
)

const (
	// HistoryLimit is the provider's maximum number of recently-played
	// items per request.
	HistoryLimit = 50

	// defaultPace is the minimum spacing between provider calls. Batch
	// resolution is deliberately serial; this keeps it under the
	// provider's rate limits.
	defaultPace = 250 * time.Millisecond
)

// ErrNoMatch is returned internally when a search yields no candidates.
var ErrNoMatch = errors.New("no matching track")

// Client composes the provider's search, track-detail, and artist-genre
// lookups into single resolve operations. It holds no mutable state
// beyond the rate limiter; the underlying API client manages its own
// token refresh.
type Client struct {
	api     *spotify.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithPace overrides the minimum spacing between provider calls.
func WithPace(d time.Duration) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// New creates a catalog client over an authenticated Spotify API client.
func New(api *spotify.Client, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Every(defaultPace), 1),
		log:     logger.With().Str("component", "catalog").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve looks up canonical metadata for a raw title/artist pair.
// It searches for the top candidate, fetches its track detail, then
// fetches the primary artist for genre, and composes the three into one
// Track. Any step failing yields nil: failures degrade to absence
// rather than propagating.
func (c *Client) Resolve(ctx context.Context, title, artist string) *Track {
	track, err := c.resolve(ctx, title, artist)
	if err != nil {
		c.log.Debug().Err(err).
			Str("title", title).
			Str("artist", artist).
			Msg("resolve failed, treating as no match")
		return nil
	}
	return track
}

// ResolveBatch resolves each query in order and returns results keyed by
// query ID. Queries that found no match are simply absent from the map.
// Calls are issued serially with the client's pacing between them; this
// trades latency for staying inside provider rate limits.
func (c *Client) ResolveBatch(ctx context.Context, queries []Query) map[string]*Track {
	results := make(map[string]*Track, len(queries))
	for _, q := range queries {
		select {
		case <-ctx.Done():
			return results
		default:
		}

		if track := c.Resolve(ctx, q.Title, q.Artist); track != nil {
			results[q.ID] = track
		}
	}
	return results
}

// RecentHistory fetches the provider's play history overlapping
// [from, to], inclusive at both ends. The provider bounds how far back
// the history reaches and caps it at HistoryLimit items, so long
// sessions may not be fully covered. Returns an empty slice on any
// failure.
func (c *Client) RecentHistory(ctx context.Context, from, to time.Time) []PlayRecord {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}

	items, err := c.api.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{
		Limit:         HistoryLimit,
		BeforeEpochMs: to.UnixMilli() + 1,
	})
	if err != nil {
		c.log.Debug().Err(err).Msg("history fetch failed, returning empty")
		return nil
	}

	var records []PlayRecord
	for _, item := range items {
		if item.PlayedAt.Before(from) || item.PlayedAt.After(to) {
			continue
		}
		records = append(records, PlayRecord{
			Track:    simpleTrackToTrack(item.Track),
			PlayedAt: item.PlayedAt,
		})
	}
	return records
}

func (c *Client) resolve(ctx context.Context, title, artist string) (*Track, error) {
	query := searchQuery(title, artist)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	if res.Tracks == nil || len(res.Tracks.Tracks) == 0 {
		return nil, ErrNoMatch
	}
	hit := res.Tracks.Tracks[0]

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	full, err := c.api.GetTrack(ctx, hit.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching track %s: %w", hit.ID, err)
	}

	// Genre lives on the artist object, not the track.
	var genre string
	if len(full.Artists) > 0 {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		fullArtist, err := c.api.GetArtist(ctx, full.Artists[0].ID)
		if err != nil {
			return nil, fmt.Errorf("fetching artist %s: %w", full.Artists[0].ID, err)
		}
		if len(fullArtist.Genres) > 0 {
			genre = fullArtist.Genres[0]
		}
	}

	track := fullTrackToTrack(full, genre)
	return &track, nil
}

// searchQuery builds the provider search string: lowercase artist and
// title, with any bracketed suffix ("(Live)", "[Remaster]") stripped
// from the title since it hurts search recall.
func searchQuery(title, artist string) string {
	if idx := strings.IndexAny(title, "(["); idx != -1 {
		title = title[:idx]
	}
	return strings.ToLower(strings.TrimSpace(artist) + " " + strings.TrimSpace(title))
}

// joinArtists joins artist names with ", ".
func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func fullTrackToTrack(ft *spotify.FullTrack, genre string) Track {
	t := Track{
		ID:         ft.ID.String(),
		Name:       ft.Name,
		Artist:     joinArtists(ft.Artists),
		Album:      ft.Album.Name,
		Genre:      genre,
		DurationMs: int(ft.Duration),
		Popularity: int(ft.Popularity),
	}
	if len(ft.Album.Images) > 0 {
		t.ImageURL = ft.Album.Images[0].URL
	}
	return t
}

func simpleTrackToTrack(st spotify.SimpleTrack) Track {
	t := Track{
		ID:         st.ID.String(),
		Name:       st.Name,
		Artist:     joinArtists(st.Artists),
		Album:      st.Album.Name,
		DurationMs: int(st.Duration),
	}
	if len(st.Album.Images) > 0 {
		t.ImageURL = st.Album.Images[0].URL
	}
	return t
}
