// Package match implements time-windowed fuzzy matching of partial
// listening events against authoritative play records. Matching is a
// pure function: no I/O, no shared state, deterministic for identical
// inputs.
package match

import (
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/soundtrail/soundtrail/internal/catalog"
	"github.com/soundtrail/soundtrail/internal/event"
)

const (
	titleWeight  = 0.7
	artistWeight = 0.3

	// ScoreThreshold is the minimum combined similarity for a match.
	// The threshold is exclusive: a candidate scoring exactly 0.8 is
	// rejected.
	ScoreThreshold = 0.8
)

// levenshtein is case-insensitive normalized Levenshtein: similarity is
// 1 - distance/max(len). Safe for concurrent use; the metric holds only
// configuration.
var levenshtein = func() *metrics.Levenshtein {
	m := metrics.NewLevenshtein()
	m.CaseSensitive = false
	return m
}()

// Match returns the play record best matching the partial event, or
// false when no candidate qualifies. Candidates are first filtered to
// those played within window of the partial's timestamp (symmetric,
// inclusive at the boundary), then scored by weighted title and artist
// similarity. The highest score above ScoreThreshold wins; ties go to
// the candidate played closest to the partial's timestamp.
func Match(partial event.Partial, candidates []catalog.PlayRecord, window time.Duration) (catalog.PlayRecord, bool) {
	var best catalog.PlayRecord
	var bestScore float64
	found := false

	for _, cand := range candidates {
		if timeOffset(partial.Timestamp, cand.PlayedAt) > window {
			continue
		}

		s := score(partial, cand)
		if s <= ScoreThreshold {
			continue
		}

		switch {
		case !found || s > bestScore:
			best, bestScore, found = cand, s, true
		case s == bestScore && timeOffset(partial.Timestamp, cand.PlayedAt) < timeOffset(partial.Timestamp, best.PlayedAt):
			best = cand
		}
	}

	return best, found
}

// score combines title and artist similarity, weighted toward the title
// since artist strings are the more reliable of the two capture fields.
func score(partial event.Partial, cand catalog.PlayRecord) float64 {
	return titleWeight*strutil.Similarity(partial.TrackName, cand.Track.Name, levenshtein) +
		artistWeight*strutil.Similarity(partial.ArtistName, cand.Track.Artist, levenshtein)
}

func timeOffset(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
