package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soundtrail/soundtrail/internal/event"
)

// EventRepository handles enriched listening-event persistence.
type EventRepository struct {
	pool *pgxpool.Pool
}

// InsertBatch stores terminal events. An event id already stored is left
// untouched: terminal events are immutable.
func (r *EventRepository) InsertBatch(ctx context.Context, events []event.Enriched) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO listening_events
			(id, track_id, track_name, artist_name, album_name, genre,
			 played_at, latitude, longitude, location_label, session_mode, fallback)
		SELECT * FROM unnest(
			$1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[],
			$7::timestamptz[], $8::float8[], $9::float8[], $10::text[], $11::text[], $12::bool[])
		ON CONFLICT (id) DO NOTHING
	`

	ids := make([]string, len(events))
	trackIDs := make([]string, len(events))
	names := make([]string, len(events))
	artists := make([]string, len(events))
	albums := make([]string, len(events))
	genres := make([]string, len(events))
	playedAts := make([]time.Time, len(events))
	lats := make([]float64, len(events))
	lngs := make([]float64, len(events))
	labels := make([]string, len(events))
	modes := make([]string, len(events))
	fallbacks := make([]bool, len(events))

	for i, e := range events {
		ids[i] = e.EventID
		trackIDs[i] = e.TrackID
		names[i] = e.TrackName
		artists[i] = e.ArtistName
		albums[i] = e.AlbumName
		genres[i] = e.Genre
		playedAts[i] = e.Timestamp
		lats[i] = e.Latitude
		lngs[i] = e.Longitude
		labels[i] = e.LocationLabel
		modes[i] = string(e.SessionMode)
		fallbacks[i] = e.Fallback
	}

	_, err := r.pool.Exec(ctx, query,
		ids, trackIDs, names, artists, albums, genres,
		playedAts, lats, lngs, labels, modes, fallbacks)
	if err != nil {
		return fmt.Errorf("batch inserting events: %w", err)
	}
	return nil
}

// Insert stores a single terminal event.
func (r *EventRepository) Insert(ctx context.Context, e event.Enriched) error {
	return r.InsertBatch(ctx, []event.Enriched{e})
}

// ListBetween retrieves events played within [from, to], oldest first.
func (r *EventRepository) ListBetween(ctx context.Context, from, to time.Time) ([]event.Enriched, error) {
	query := `
		SELECT id, track_id, track_name, artist_name, album_name, genre,
		       played_at, latitude, longitude, location_label, session_mode, fallback
		FROM listening_events
		WHERE played_at BETWEEN $1 AND $2
		ORDER BY played_at ASC
	`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []event.Enriched
	for rows.Next() {
		var e event.Enriched
		var mode string
		if err := rows.Scan(
			&e.EventID, &e.TrackID, &e.TrackName, &e.ArtistName, &e.AlbumName, &e.Genre,
			&e.Timestamp, &e.Latitude, &e.Longitude, &e.LocationLabel, &mode, &e.Fallback,
		); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.SessionMode = event.SessionMode(mode)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}
