// Package track holds the Track Index: the durable store of enriched track
// records synced from the library source, plus the aggregate read queries
// consumed by the curation pipeline and the broadcasting engine.
package track

import "time"

// Track is a single catalog entry. Identity is the opaque id handed out by
// the library source — since these are remote tracks rather than
// checksum-keyed local files, this id is authoritative and never
// recomputed locally.
type Track struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Artist   string   `json:"artist"`
	Album    string   `json:"album"`
	Year     int      `json:"year,omitempty"`
	Duration int      `json:"duration"` // seconds
	Path     string   `json:"path,omitempty"`
	Genres   []string `json:"genres,omitempty"`

	// Enrichment, populated by the embedding service and (optionally) an
	// upstream AI tagging pass. Embedding is nil until the embedding
	// service has processed this track at the current model version.
	Embedding    []float32 `json:"embedding,omitempty"`
	ModelVersion string    `json:"model_version,omitempty"`
	Mood         []string  `json:"mood,omitempty"`
	Energy       float64   `json:"energy,omitempty"`
	Tempo        float64   `json:"tempo,omitempty"`
	Valence      float64   `json:"valence,omitempty"`

	LastSynced time.Time `json:"last_synced"`

	// PlayCount is bumped by Index.IncrementPlayCount; the broadcasting
	// engine does not call that when a track completes playback. Used only
	// as a curation tie-break; not itself a scheduling input.
	PlayCount int `json:"play_count,omitempty"`
}

// HasCurrentEmbedding reports whether t carries an embedding computed at the
// given production model version.
func (t *Track) HasCurrentEmbedding(productionVersion string) bool {
	return len(t.Embedding) > 0 && t.ModelVersion == productionVersion
}

// Valid reports whether t satisfies the data-model invariants from the
// track index: non-empty id, positive duration.
func (t *Track) Valid() bool {
	return t.ID != "" && t.Duration > 0
}

// Stats summarizes the index for use as LLM context during seed selection.
type Stats struct {
	TotalTracks   int            `json:"total_tracks"`
	TopGenres     []string       `json:"top_genres"`
	TopArtists    []string       `json:"top_artists"`
	YearMin       int            `json:"year_min"`
	YearMax       int            `json:"year_max"`
	MoodTags      []string       `json:"mood_tags"`
	GenreCounts   map[string]int `json:"-"`
	ArtistCounts  map[string]int `json:"-"`
	EmbeddedCount int            `json:"embedded_count"`
}

// CoverageRatio returns the fraction of tracks carrying a current embedding.
func (s Stats) CoverageRatio() float64 {
	if s.TotalTracks == 0 {
		return 0
	}
	return float64(s.EmbeddedCount) / float64(s.TotalTracks)
}
