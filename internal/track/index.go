package track

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Index is the single source of truth for every known track. Stations and
// the curation pipeline hold only track ids; the index is where the actual
// records live, keyed by the source-supplied opaque id rather than a
// locally computed checksum.
type Index struct {
	mu     sync.RWMutex
	tracks map[string]*Track
	order  []string // insertion order, kept for deterministic listing
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{tracks: make(map[string]*Track)}
}

// Upsert inserts or replaces the track by id, preserving enrichment fields
// (embedding, mood, energy, tempo, valence, model version) already present
// unless the incoming record explicitly carries its own.
func (idx *Index) Upsert(t *Track) {
	if t == nil || t.ID == "" {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.tracks[t.ID]; ok {
		if len(t.Embedding) == 0 {
			t.Embedding = existing.Embedding
			t.ModelVersion = existing.ModelVersion
		}
		if len(t.Mood) == 0 {
			t.Mood = existing.Mood
		}
		if t.Energy == 0 {
			t.Energy = existing.Energy
		}
		if t.Tempo == 0 {
			t.Tempo = existing.Tempo
		}
		if t.Valence == 0 {
			t.Valence = existing.Valence
		}
		idx.tracks[t.ID] = t
		return
	}

	idx.tracks[t.ID] = t
	idx.order = append(idx.order, t.ID)
}

// Remove deletes the track with the given id. Returns true if it was present.
func (idx *Index) Remove(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.tracks[id]; !ok {
		return false
	}
	delete(idx.tracks, id)
	for i, oid := range idx.order {
		if oid == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveNotIn removes every track whose id is not present in keep, returning
// the removed ids. Used at the end of a full sync to drop tracks the source
// no longer reports.
func (idx *Index) RemoveNotIn(keep map[string]struct{}) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var removed []string
	newOrder := idx.order[:0:0]
	for _, id := range idx.order {
		if _, ok := keep[id]; ok {
			newOrder = append(newOrder, id)
			continue
		}
		removed = append(removed, id)
		delete(idx.tracks, id)
	}
	idx.order = newOrder
	return removed
}

// Get returns the track with the given id, or nil.
func (idx *Index) Get(id string) *Track {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tracks[id]
}

// GetMany returns the tracks for the given ids, skipping any id not present.
func (idx *Index) GetMany(ids []string) []*Track {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	result := make([]*Track, 0, len(ids))
	for _, id := range ids {
		if t, ok := idx.tracks[id]; ok {
			result = append(result, t)
		}
	}
	return result
}

// IncrementPlayCount bumps the play count for id; curation reads PlayCount
// as a tie-break signal. The broadcasting engine does not call it when a
// track finishes.
func (idx *Index) IncrementPlayCount(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if t, ok := idx.tracks[id]; ok {
		t.PlayCount++
	}
}

// Count returns the number of tracks in the index.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.tracks)
}

// Contains reports whether id is present in the index.
func (idx *Index) Contains(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.tracks[id]
	return ok
}

// List returns every track, in insertion order.
func (idx *Index) List() []*Track {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	result := make([]*Track, 0, len(idx.order))
	for _, id := range idx.order {
		result = append(result, idx.tracks[id])
	}
	return result
}

// SearchGenre returns tracks whose genre list contains genre
// (case-insensitive exact match against any element).
func (idx *Index) SearchGenre(genre string) []*Track {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	genre = strings.ToLower(genre)
	var result []*Track
	for _, id := range idx.order {
		t := idx.tracks[id]
		for _, g := range t.Genres {
			if strings.ToLower(g) == genre {
				result = append(result, t)
				break
			}
		}
	}
	return result
}

// SearchText returns tracks whose title, artist, or album contain query
// (case-insensitive substring match).
func (idx *Index) SearchText(query string) []*Track {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if query == "" {
		return idx.listUnsafe()
	}
	q := strings.ToLower(query)
	var result []*Track
	for _, id := range idx.order {
		t := idx.tracks[id]
		if strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.Artist), q) ||
			strings.Contains(strings.ToLower(t.Album), q) {
			result = append(result, t)
		}
	}
	return result
}

func (idx *Index) listUnsafe() []*Track {
	result := make([]*Track, 0, len(idx.order))
	for _, id := range idx.order {
		result = append(result, idx.tracks[id])
	}
	return result
}

// EmbeddingCoverage returns the fraction of tracks carrying a current
// embedding at productionVersion, used by the curation pipeline to decide
// between NN gap-filling and degraded random fill.
func (idx *Index) EmbeddingCoverage(productionVersion string) float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(idx.tracks) == 0 {
		return 0
	}
	n := 0
	for _, t := range idx.tracks {
		if t.HasCurrentEmbedding(productionVersion) {
			n++
		}
	}
	return float64(n) / float64(len(idx.tracks))
}

// PendingEmbeddings returns ids of tracks lacking a current-version
// embedding, for the embedding service's batch worker to pick up.
func (idx *Index) PendingEmbeddings(productionVersion string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var pending []string
	for _, id := range idx.order {
		if !idx.tracks[id].HasCurrentEmbedding(productionVersion) {
			pending = append(pending, id)
		}
	}
	return pending
}

// PendingTrackIDs is PendingEmbeddings under the name the embedding
// worker's locally-declared Source interface expects.
func (idx *Index) PendingTrackIDs(productionVersion string) []string {
	return idx.PendingEmbeddings(productionVersion)
}

// TrackPath returns the on-disk path the embedding worker should decode for
// trackID, and whether the track is known at all.
func (idx *Index) TrackPath(trackID string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	t, ok := idx.tracks[trackID]
	if !ok || t.Path == "" {
		return "", false
	}
	return t.Path, true
}

// ApplyEmbedding records a freshly computed embedding vector and model
// version against trackID, a no-op if the track has since been removed.
func (idx *Index) ApplyEmbedding(trackID string, vector []float32, modelVersion string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if t, ok := idx.tracks[trackID]; ok {
		t.Embedding = vector
		t.ModelVersion = modelVersion
	}
}

// ApplyTagMetadata backfills genre and year on trackID from locally-read
// ID3/tag data, filling in only what the library source's own metadata left
// blank. A no-op if the track has since been removed.
func (idx *Index) ApplyTagMetadata(trackID string, genres []string, year int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	t, ok := idx.tracks[trackID]
	if !ok {
		return
	}
	if len(t.Genres) == 0 && len(genres) > 0 {
		t.Genres = genres
	}
	if t.Year == 0 && year != 0 {
		t.Year = year
	}
}

// Stats computes the aggregate statistics used as LLM context.
func (idx *Index) Stats(productionVersion string) Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	genreCounts := make(map[string]int)
	artistCounts := make(map[string]int)
	moodSet := make(map[string]struct{})
	yearMin, yearMax := 0, 0
	embedded := 0

	for _, t := range idx.tracks {
		for _, g := range t.Genres {
			genreCounts[g]++
		}
		if t.Artist != "" {
			artistCounts[t.Artist]++
		}
		for _, m := range t.Mood {
			moodSet[m] = struct{}{}
		}
		if t.Year > 0 {
			if yearMin == 0 || t.Year < yearMin {
				yearMin = t.Year
			}
			if t.Year > yearMax {
				yearMax = t.Year
			}
		}
		if t.HasCurrentEmbedding(productionVersion) {
			embedded++
		}
	}

	return Stats{
		TotalTracks:   len(idx.tracks),
		TopGenres:     topN(genreCounts, 10),
		TopArtists:    topN(artistCounts, 10),
		YearMin:       yearMin,
		YearMax:       yearMax,
		MoodTags:      setToSlice(moodSet),
		GenreCounts:   genreCounts,
		ArtistCounts:  artistCounts,
		EmbeddedCount: embedded,
	}
}

func topN(counts map[string]int, n int) []string {
	type kv struct {
		k string
		v int
	}
	kvs := make([]kv, 0, len(counts))
	for k, v := range counts {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].v != kvs[j].v {
			return kvs[i].v > kvs[j].v
		}
		return kvs[i].k < kvs[j].k
	})
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, e := range kvs {
		out[i] = e.k
	}
	return out
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON serializes the index as an ordered array of tracks, matching
// a flat array-of-records persistence shape.
func (idx *Index) MarshalJSON() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return json.Marshal(idx.listUnsafe())
}

// UnmarshalJSON rebuilds the index from a persisted array of tracks.
func (idx *Index) UnmarshalJSON(data []byte) error {
	var tracks []*Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.tracks = make(map[string]*Track, len(tracks))
	idx.order = idx.order[:0]
	for _, t := range tracks {
		if t == nil || t.ID == "" {
			continue
		}
		idx.tracks[t.ID] = t
		idx.order = append(idx.order, t.ID)
	}
	return nil
}
