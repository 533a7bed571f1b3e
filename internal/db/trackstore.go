package db

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundtrail/soundtrail/internal/catalog"
	"github.com/soundtrail/soundtrail/internal/enrich"
)

// storeTimeout bounds each cache-store round trip so a slow database
// never stalls the enrichment pipeline.
const storeTimeout = 5 * time.Second

// TrackStore satisfies the engine's cache contract with a two-level
// lookup: in-memory first, Postgres second, so canonical metadata
// survives restarts while hot entries stay lock-cheap. Store failures
// are absorbed and reported as misses; the engine then simply resolves
// again.
type TrackStore struct {
	db  *DB
	mem *enrich.MemoryCache
	log zerolog.Logger
}

// NewTrackStore creates a durable track cache over the database.
func NewTrackStore(database *DB, logger zerolog.Logger) *TrackStore {
	return &TrackStore{
		db:  database,
		mem: enrich.NewMemoryCache(),
		log: logger.With().Str("component", "trackstore").Logger(),
	}
}

// Get looks up a raw title/artist pair, promoting database hits into the
// in-memory layer.
func (s *TrackStore) Get(title, artist string) (catalog.Track, bool) {
	if track, ok := s.mem.Get(title, artist); ok {
		return track, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	track, err := s.db.Tracks().Get(ctx, enrich.CacheKey(title, artist))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Debug().Err(err).Msg("track cache lookup failed, treating as miss")
		}
		return catalog.Track{}, false
	}

	s.mem.Put(title, artist, track)
	return track, true
}

// GetByID looks up a track by canonical id.
func (s *TrackStore) GetByID(id string) (catalog.Track, bool) {
	if track, ok := s.mem.GetByID(id); ok {
		return track, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	track, err := s.db.Tracks().GetByTrackID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Debug().Err(err).Msg("track cache lookup failed, treating as miss")
		}
		return catalog.Track{}, false
	}

	s.mem.Put(track.Name, track.Artist, track)
	return track, true
}

// Put writes through both layers, keying the durable store by the raw
// query pair and by the canonical spelling, matching the in-memory
// semantics. Database errors are logged and absorbed.
func (s *TrackStore) Put(title, artist string, track catalog.Track) {
	s.mem.Put(title, artist, track)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	repo := s.db.Tracks()
	if err := repo.Put(ctx, enrich.CacheKey(title, artist), track); err != nil {
		s.log.Debug().Err(err).Msg("track cache write failed")
		return
	}

	canonical := enrich.CacheKey(track.Name, track.Artist)
	if canonical != enrich.CacheKey(title, artist) {
		if err := repo.Put(ctx, canonical, track); err != nil {
			s.log.Debug().Err(err).Msg("track cache write failed")
		}
	}
}
