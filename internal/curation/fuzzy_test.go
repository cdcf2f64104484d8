package curation

import (
	"testing"

	"github.com/broadcast-engine/stationcast/internal/track"
)

func buildIndex(tracks ...*track.Track) *track.Index {
	idx := track.NewIndex()
	for _, t := range tracks {
		idx.Upsert(t)
	}
	return idx
}

func TestResolveSeed_ExactMatch(t *testing.T) {
	idx := buildIndex(&track.Track{ID: "t1", Title: "Bohemian Rhapsody", Artist: "Queen", Duration: 300})

	got, sim, ok := ResolveSeed(idx, "Bohemian Rhapsody", "Queen", nil, nil)
	if !ok {
		t.Fatal("expected a match")
	}
	if got.ID != "t1" {
		t.Errorf("resolved id = %q, want t1", got.ID)
	}
	if sim < 0.9 {
		t.Errorf("similarity = %v, want close to 1 for an exact match", sim)
	}
}

func TestResolveSeed_BelowThresholdDrops(t *testing.T) {
	idx := buildIndex(&track.Track{ID: "t1", Title: "Totally Unrelated Song", Artist: "Nobody", Duration: 200})

	_, _, ok := ResolveSeed(idx, "Bohemian Rhapsody", "Queen", nil, nil)
	if ok {
		t.Error("expected no match above threshold")
	}
}

func TestResolveSeed_ExcludesGivenIDs(t *testing.T) {
	idx := buildIndex(
		&track.Track{ID: "t1", Title: "Yesterday", Artist: "The Beatles", Duration: 120},
		&track.Track{ID: "t2", Title: "Yesterday", Artist: "The Beatles", Duration: 125},
	)

	got, _, ok := ResolveSeed(idx, "Yesterday", "The Beatles", nil, map[string]struct{}{"t1": {}})
	if !ok || got.ID != "t2" {
		t.Errorf("expected t2 to be resolved when t1 excluded, got %v ok=%v", got, ok)
	}
}

func TestResolveSeed_TieBreaksOnGenreOverlapThenPlayCount(t *testing.T) {
	idx := buildIndex(
		&track.Track{ID: "t1", Title: "Sample Track", Artist: "Artist X", Duration: 200, Genres: []string{"pop"}, PlayCount: 5},
		&track.Track{ID: "t2", Title: "Sample Track", Artist: "Artist X", Duration: 200, Genres: []string{"rock"}, PlayCount: 1},
	)

	got, _, ok := ResolveSeed(idx, "Sample Track", "Artist X", []string{"rock"}, nil)
	if !ok || got.ID != "t2" {
		t.Errorf("expected genre-overlapping t2 to win tie-break, got %v", got)
	}
}

func TestTrigramSimilarity_IdenticalStringsScoreOne(t *testing.T) {
	if sim := trigramSimilarity("hello world", "hello world"); sim != 1 {
		t.Errorf("similarity = %v, want 1", sim)
	}
}
