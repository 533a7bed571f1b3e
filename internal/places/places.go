// Package places groups enriched listening events by capture location
// using k-means clustering, surfacing the spots someone keeps coming
// back to and what they listen to there.
package places

import (
	"slices"
	"sort"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/soundtrail/soundtrail/internal/event"
)

// Config controls place detection.
type Config struct {
	NumClusters    int // target number of places
	MinClusterSize int // clusters smaller than this become outliers
}

// DefaultConfig returns the default place-detection configuration.
func DefaultConfig() Config {
	return Config{
		NumClusters:    4,
		MinClusterSize: 3,
	}
}

// Place is a recurring listening location: a cluster of events with its
// centroid coordinates, the most common location label among them, and
// the genres heard there most.
type Place struct {
	Label     string           `json:"label,omitempty"`
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	TopGenres []string         `json:"top_genres,omitempty"`
	Events    []event.Enriched `json:"events"`
}

// eventObservation wraps an event to implement clusters.Observation.
type eventObservation struct {
	evt    *event.Enriched
	coords clusters.Coordinates
}

func (o eventObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o eventObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// Detect clusters events by latitude/longitude. Events without
// coordinates are outliers, as is every member of a cluster smaller
// than MinClusterSize. When there are fewer locatable events than
// clusters, or clustering fails, everything is an outlier.
func Detect(events []event.Enriched, cfg Config) ([]Place, []event.Enriched) {
	if len(events) == 0 {
		return nil, nil
	}

	if cfg.NumClusters <= 0 {
		cfg.NumClusters = DefaultConfig().NumClusters
	}

	var located []*event.Enriched
	var outliers []event.Enriched

	for i := range events {
		e := &events[i]
		if hasCoordinates(e) {
			located = append(located, e)
		} else {
			outliers = append(outliers, *e)
		}
	}

	if len(located) < cfg.NumClusters {
		for _, e := range located {
			outliers = append(outliers, *e)
		}
		return nil, outliers
	}

	var obs clusters.Observations
	for _, e := range located {
		obs = append(obs, eventObservation{
			evt:    e,
			coords: clusters.Coordinates{e.Latitude, e.Longitude},
		})
	}

	km := kmeans.New()
	result, err := km.Partition(obs, cfg.NumClusters)
	if err != nil {
		for _, e := range located {
			outliers = append(outliers, *e)
		}
		return nil, outliers
	}

	var detected []Place
	for _, cluster := range result {
		var members []event.Enriched
		for _, o := range cluster.Observations {
			if eo, ok := o.(eventObservation); ok {
				members = append(members, *eo.evt)
			}
		}

		if len(members) < cfg.MinClusterSize {
			outliers = append(outliers, members...)
			continue
		}

		slices.SortFunc(members, func(a, b event.Enriched) int {
			return a.Timestamp.Compare(b.Timestamp)
		})

		detected = append(detected, Place{
			Label:     commonLabel(members),
			Latitude:  cluster.Center[0],
			Longitude: cluster.Center[1],
			TopGenres: topGenres(members, 3),
			Events:    members,
		})
	}

	return detected, outliers
}

func hasCoordinates(e *event.Enriched) bool {
	return e.Latitude != 0 || e.Longitude != 0
}

// commonLabel returns the most frequent non-empty location label.
func commonLabel(events []event.Enriched) string {
	counts := make(map[string]int)
	for _, e := range events {
		if e.LocationLabel != "" {
			counts[e.LocationLabel]++
		}
	}

	var label string
	var best int
	for l, n := range counts {
		if n > best || (n == best && l < label) {
			label, best = l, n
		}
	}
	return label
}

// topGenres returns up to n genres by play count, most played first.
func topGenres(events []event.Enriched, n int) []string {
	counts := make(map[string]int)
	for _, e := range events {
		if e.Genre != "" {
			counts[e.Genre]++
		}
	}

	genres := make([]string, 0, len(counts))
	for g := range counts {
		genres = append(genres, g)
	}
	sort.Slice(genres, func(i, j int) bool {
		if counts[genres[i]] != counts[genres[j]] {
			return counts[genres[i]] > counts[genres[j]]
		}
		return genres[i] < genres[j]
	})

	if len(genres) > n {
		genres = genres[:n]
	}
	return genres
}
