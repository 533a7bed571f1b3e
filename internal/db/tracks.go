package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soundtrail/soundtrail/internal/catalog"
)

// TrackRepository handles the durable canonical-track cache.
type TrackRepository struct {
	pool *pgxpool.Pool
}

// Put stores a track under the given normalized cache key, overwriting
// unconditionally.
func (r *TrackRepository) Put(ctx context.Context, cacheKey string, track catalog.Track) error {
	query := `
		INSERT INTO track_cache
			(cache_key, track_id, name, artist, album, genre, duration_ms, popularity, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cache_key) DO UPDATE SET
			track_id = EXCLUDED.track_id,
			name = EXCLUDED.name,
			artist = EXCLUDED.artist,
			album = EXCLUDED.album,
			genre = EXCLUDED.genre,
			duration_ms = EXCLUDED.duration_ms,
			popularity = EXCLUDED.popularity,
			image_url = EXCLUDED.image_url
	`
	_, err := r.pool.Exec(ctx, query,
		cacheKey, track.ID, track.Name, track.Artist, track.Album,
		track.Genre, track.DurationMs, track.Popularity, track.ImageURL)
	if err != nil {
		return fmt.Errorf("upserting cached track: %w", err)
	}
	return nil
}

// Get retrieves the track stored under a normalized cache key.
func (r *TrackRepository) Get(ctx context.Context, cacheKey string) (catalog.Track, error) {
	query := `
		SELECT track_id, name, artist, album, genre, duration_ms, popularity, image_url
		FROM track_cache
		WHERE cache_key = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, cacheKey))
}

// GetByTrackID retrieves a track by its canonical provider id.
func (r *TrackRepository) GetByTrackID(ctx context.Context, trackID string) (catalog.Track, error) {
	query := `
		SELECT track_id, name, artist, album, genre, duration_ms, popularity, image_url
		FROM track_cache
		WHERE track_id = $1
		LIMIT 1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, trackID))
}

func (r *TrackRepository) scanOne(row pgx.Row) (catalog.Track, error) {
	var t catalog.Track
	err := row.Scan(
		&t.ID, &t.Name, &t.Artist, &t.Album,
		&t.Genre, &t.DurationMs, &t.Popularity, &t.ImageURL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Track{}, ErrNotFound
	}
	if err != nil {
		return catalog.Track{}, fmt.Errorf("querying cached track: %w", err)
	}
	return t, nil
}
