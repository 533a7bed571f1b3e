// Package event defines the listening-event types exchanged between the
// capture layer, the enrichment engine, and persistence.
package event

import "time"

// FallbackIDPrefix marks locally synthesized track identifiers on events
// that never resolved against the catalog.
const FallbackIDPrefix = "local:"

// SessionMode tags an event with the listening context it was captured in.
// The engine carries it through untouched.
type SessionMode string

// Session modes.
const (
	ModeForeground SessionMode = "foreground"
	ModeBackground SessionMode = "background"
)

// Partial is a locally observed play: raw text metadata and a coarse
// location, with no canonical identifier. It is immutable once handed to
// the engine.
type Partial struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	LocationLabel string    `json:"location_label,omitempty"`
	TrackName     string    `json:"track_name"`
	ArtistName    string    `json:"artist_name"`
	AlbumName     string    `json:"album_name,omitempty"`
}

// Enriched is the terminal event: a partial's temporal and location
// fields merged with resolved canonical metadata. When no canonical
// match was ever found the naming fields carry the raw partial values,
// TrackID carries a FallbackIDPrefix identifier, and Fallback is true;
// the shape is identical either way so callers need not special-case it.
type Enriched struct {
	EventID       string      `json:"event_id"`
	TrackID       string      `json:"track_id"`
	TrackName     string      `json:"track_name"`
	ArtistName    string      `json:"artist_name"`
	AlbumName     string      `json:"album_name,omitempty"`
	Genre         string      `json:"genre,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	Latitude      float64     `json:"latitude"`
	Longitude     float64     `json:"longitude"`
	LocationLabel string      `json:"location_label,omitempty"`
	SessionMode   SessionMode `json:"session_mode"`
	Fallback      bool        `json:"fallback"`
}
