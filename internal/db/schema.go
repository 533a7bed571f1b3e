package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on startup. Statements are idempotent so repeated
// startups are safe.
const schema = `
CREATE TABLE IF NOT EXISTS listening_events (
	id             text PRIMARY KEY,
	track_id       text NOT NULL,
	track_name     text NOT NULL,
	artist_name    text NOT NULL,
	album_name     text NOT NULL DEFAULT '',
	genre          text NOT NULL DEFAULT '',
	played_at      timestamptz NOT NULL,
	latitude       double precision NOT NULL,
	longitude      double precision NOT NULL,
	location_label text NOT NULL DEFAULT '',
	session_mode   text NOT NULL,
	fallback       boolean NOT NULL DEFAULT false,
	created_at     timestamptz NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS listening_events_played_at_idx
	ON listening_events (played_at);

CREATE TABLE IF NOT EXISTS track_cache (
	cache_key   text PRIMARY KEY,
	track_id    text NOT NULL,
	name        text NOT NULL,
	artist      text NOT NULL,
	album       text NOT NULL DEFAULT '',
	genre       text NOT NULL DEFAULT '',
	duration_ms integer NOT NULL DEFAULT 0,
	popularity  integer NOT NULL DEFAULT 0,
	image_url   text NOT NULL DEFAULT '',
	created_at  timestamptz NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS track_cache_track_id_idx
	ON track_cache (track_id);
`

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}
