package catalog

import "time"

// Track is provider-verified, uniquely identified track metadata.
type Track struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	Genre      string `json:"genre,omitempty"`
	DurationMs int    `json:"duration_ms"`
	Popularity int    `json:"popularity"`
	ImageURL   string `json:"image_url,omitempty"`
}

// PlayRecord is an entry from the provider's own play history: a track
// plus the provider-reported play time. It exists only transiently
// during session reconciliation.
type PlayRecord struct {
	Track    Track
	PlayedAt time.Time
}

// Query is a single title/artist lookup within a batch. ID correlates
// the result back to the event that asked for it.
type Query struct {
	ID     string
	Title  string
	Artist string
}
