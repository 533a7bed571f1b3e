package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soundtrail/soundtrail/internal/db"
	"github.com/soundtrail/soundtrail/internal/enrich"
	"github.com/soundtrail/soundtrail/internal/event"
	"github.com/soundtrail/soundtrail/internal/places"
)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	engine *enrich.Engine
	db     *db.DB
	log    zerolog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(engine *enrich.Engine, database *db.DB, logger zerolog.Logger) *Handlers {
	return &Handlers{
		engine: engine,
		db:     database,
		log:    logger.With().Str("component", "handlers").Logger(),
	}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type captureRequest struct {
	event.Partial
	SessionMode event.SessionMode `json:"session_mode"`
}

// CaptureEvent ingests one partial listening event and responds with its
// terminal event. A cache hit answers immediately; otherwise the request
// waits for the next batch flush. Either way the response is a terminal
// event: enrichment failures degrade to a fallback, never an error.
func (h *Handlers) CaptureEvent(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TrackName == "" || req.ArtistName == "" {
		respondError(w, http.StatusBadRequest, "track_name and artist_name are required")
		return
	}

	partial := req.Partial
	if partial.ID == "" {
		partial.ID = uuid.NewString()
	}
	if partial.Timestamp.IsZero() {
		partial.Timestamp = time.Now()
	}
	mode := req.SessionMode
	if mode == "" {
		mode = event.ModeForeground
	}

	select {
	case enriched := <-h.engine.Enrich(partial, mode):
		h.persist(r.Context(), enriched)
		respondJSON(w, http.StatusOK, enriched)
	case <-r.Context().Done():
		// Client gone; the engine still delivers a terminal event to the
		// buffered channel, it just goes unread.
	}
}

type reconcileRequest struct {
	SessionStart time.Time         `json:"session_start"`
	SessionEnd   time.Time         `json:"session_end"`
	SessionMode  event.SessionMode `json:"session_mode"`
	Events       []event.Partial   `json:"events"`
}

type reconcileResponse struct {
	Events []event.Enriched `json:"events"`
}

// ReconcileSession resolves a whole session's partial events against the
// provider's play history and responds with one terminal event per input.
func (h *Handlers) ReconcileSession(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionStart.IsZero() || req.SessionEnd.IsZero() || req.SessionEnd.Before(req.SessionStart) {
		respondError(w, http.StatusBadRequest, "session_start and session_end must form a valid window")
		return
	}

	for i := range req.Events {
		if req.Events[i].ID == "" {
			req.Events[i].ID = uuid.NewString()
		}
	}
	mode := req.SessionMode
	if mode == "" {
		mode = event.ModeBackground
	}

	enriched := h.engine.Reconcile(r.Context(), req.SessionStart, req.SessionEnd, req.Events, mode)

	if err := h.db.Events().InsertBatch(r.Context(), enriched); err != nil {
		h.log.Error().Err(err).Int("events", len(enriched)).Msg("persisting reconciled events")
	}

	respondJSON(w, http.StatusOK, reconcileResponse{Events: enriched})
}

// ListEvents returns stored events within a time window, defaulting to
// the last 24 hours.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}

	events, err := h.db.Events().ListBetween(r.Context(), from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("listing events")
		respondError(w, http.StatusInternalServerError, "listing events failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string][]event.Enriched{"events": events})
}

type placesResponse struct {
	Places   []places.Place   `json:"places"`
	Outliers []event.Enriched `json:"outliers"`
}

// Places clusters the stored events of a time window into recurring
// listening locations.
func (h *Handlers) Places(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}

	events, err := h.db.Events().ListBetween(r.Context(), from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("listing events for places")
		respondError(w, http.StatusInternalServerError, "listing events failed")
		return
	}

	detected, outliers := places.Detect(events, places.DefaultConfig())
	respondJSON(w, http.StatusOK, placesResponse{Places: detected, Outliers: outliers})
}

// persist stores a terminal event, logging rather than failing the
// request when the database is unavailable.
func (h *Handlers) persist(ctx context.Context, e event.Enriched) {
	if err := h.db.Events().Insert(ctx, e); err != nil {
		h.log.Error().Err(err).Str("event_id", e.EventID).Msg("persisting event")
	}
}

// parseWindow reads optional from/to RFC3339 query parameters.
func parseWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := time.Now()
	from := now.Add(-24 * time.Hour)
	to := now

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from parameter")
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid to parameter")
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	return from, to, true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
