package curation

import (
	"context"
	"testing"

	"github.com/broadcast-engine/stationcast/internal/embedding"
	"github.com/broadcast-engine/stationcast/internal/track"
)

type stubPlanner struct {
	plans []SeedPlan
	call  int
}

func (s *stubPlanner) PlanSeeds(ctx context.Context, query string, stats track.Stats, count int, excludeTitles []string) (SeedPlan, error) {
	if s.call >= len(s.plans) {
		return s.plans[len(s.plans)-1], nil
	}
	p := s.plans[s.call]
	s.call++
	return p, nil
}

func buildPopulatedIndex() *track.Index {
	idx := track.NewIndex()
	idx.Upsert(&track.Track{ID: "seed1", Title: "Rainy Day", Artist: "Artist A", Duration: 200, Genres: []string{"acoustic"}})
	idx.Upsert(&track.Track{ID: "seed2", Title: "Quiet Nights", Artist: "Artist B", Duration: 210, Genres: []string{"acoustic"}})
	for i := 0; i < 5; i++ {
		idx.Upsert(&track.Track{ID: "filler" + string(rune('0'+i)), Title: "Filler", Artist: "Filler Artist", Duration: 180, Genres: []string{"acoustic"}})
	}
	return idx
}

func TestPipeline_SelectSeeds_ResolvesFromPlanner(t *testing.T) {
	idx := buildPopulatedIndex()
	planner := &stubPlanner{plans: []SeedPlan{
		{Seeds: []SeedRequest{{Title: "Rainy Day", Artist: "Artist A"}}, Genres: []string{"acoustic"}},
		{Seeds: []SeedRequest{{Title: "Quiet Nights", Artist: "Artist B"}}, Genres: []string{"acoustic"}},
	}}
	p := NewPipeline(idx, embedding.NewStore(), planner, nil, "v1")

	seeds, genres, err := p.SelectSeeds(context.Background(), "relaxing acoustic", 2)
	if err != nil {
		t.Fatalf("SelectSeeds: %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("got %d seeds, want 2", len(seeds))
	}
	if seeds[0].ID != "seed1" || seeds[1].ID != "seed2" {
		t.Errorf("seeds = %v", seeds)
	}
	if len(genres) != 1 || genres[0] != "acoustic" {
		t.Errorf("genres = %v", genres)
	}
}

func TestPipeline_SelectSeeds_InsufficientSeedsWhenUnresolvable(t *testing.T) {
	idx := buildPopulatedIndex()
	planner := &stubPlanner{plans: []SeedPlan{
		{Seeds: []SeedRequest{{Title: "Completely Unmatched Song Title", Artist: "Nobody At All"}}, Genres: []string{"acoustic"}},
	}}
	p := NewPipeline(idx, embedding.NewStore(), planner, nil, "v1")

	if _, _, err := p.SelectSeeds(context.Background(), "anything", 1); err == nil {
		t.Fatal("expected insufficient_seeds error")
	}
}

func TestPipeline_FillGaps_DegradedModeUsesRandomFill(t *testing.T) {
	idx := buildPopulatedIndex()
	p := NewPipeline(idx, embedding.NewStore(), &stubPlanner{}, nil, "v1")

	seed1 := idx.Get("seed1")
	seed2 := idx.Get("seed2")

	result := p.FillGaps(context.Background(), []*track.Track{seed1, seed2}, []string{"acoustic"}, 7, nil)
	if result.Method != MethodRandomFill {
		t.Errorf("Method = %q, want %q (no embedding coverage)", result.Method, MethodRandomFill)
	}
	if len(result.TrackIDs) < 2 {
		t.Errorf("expected at least the two seeds in the output, got %v", result.TrackIDs)
	}
	if result.TrackIDs[0] != "seed1" {
		t.Errorf("expected playlist to start with seed1, got %v", result.TrackIDs)
	}
}

func TestPipeline_FillGaps_ExcludesHistory(t *testing.T) {
	idx := buildPopulatedIndex()
	p := NewPipeline(idx, embedding.NewStore(), &stubPlanner{}, nil, "v1")

	seed1 := idx.Get("seed1")
	seed2 := idx.Get("seed2")

	// Every filler but filler0 is "recently played"; the gap-filling pool
	// should have nothing left to draw from them.
	history := []string{"filler1", "filler2", "filler3", "filler4"}

	result := p.FillGaps(context.Background(), []*track.Track{seed1, seed2}, []string{"acoustic"}, 3, history)
	for _, id := range result.TrackIDs {
		for _, h := range history {
			if id == h {
				t.Fatalf("FillGaps returned history track %q, want it excluded: %v", h, result.TrackIDs)
			}
		}
	}
}

func TestPipeline_FillGaps_NNModeWalksMonotonically(t *testing.T) {
	idx := track.NewIndex()
	idx.Upsert(&track.Track{ID: "a", Title: "A", Artist: "X", Duration: 200})
	idx.Upsert(&track.Track{ID: "b", Title: "B", Artist: "Y", Duration: 200})
	idx.Upsert(&track.Track{ID: "mid1", Title: "Mid1", Artist: "Z", Duration: 200})
	idx.Upsert(&track.Track{ID: "mid2", Title: "Mid2", Artist: "Z", Duration: 200})

	store := embedding.NewStore()
	store.Put(embedding.Record{TrackID: "a", Vector: []float32{0, 0}, ModelVersion: "v1"})
	store.Put(embedding.Record{TrackID: "b", Vector: []float32{10, 0}, ModelVersion: "v1"})
	store.Put(embedding.Record{TrackID: "mid1", Vector: []float32{3, 0}, ModelVersion: "v1"})
	store.Put(embedding.Record{TrackID: "mid2", Vector: []float32{6, 0}, ModelVersion: "v1"})
	for _, id := range []string{"a", "b", "mid1", "mid2"} {
		idx.Get(id).Embedding = []float32{0}
		idx.Get(id).ModelVersion = "v1"
	}

	p := NewPipeline(idx, store, &stubPlanner{}, nil, "v1")
	result := p.FillGaps(context.Background(), []*track.Track{idx.Get("a"), idx.Get("b")}, nil, 4, nil)

	if result.Method != MethodNN {
		t.Fatalf("Method = %q, want %q", result.Method, MethodNN)
	}
	if len(result.TrackIDs) < 2 {
		t.Fatalf("expected at least both seeds present, got %v", result.TrackIDs)
	}
	if result.TrackIDs[0] != "a" || result.TrackIDs[len(result.TrackIDs)-1] != "b" {
		t.Errorf("expected playlist to start at a and end at b, got %v", result.TrackIDs)
	}
}

func TestPipeline_HybridCurate_CacheHitShortCircuits(t *testing.T) {
	idx := buildPopulatedIndex()
	planner := &stubPlanner{plans: []SeedPlan{
		{Seeds: []SeedRequest{{Title: "Rainy Day", Artist: "Artist A"}}, Genres: []string{"acoustic"}},
		{Seeds: []SeedRequest{{Title: "Quiet Nights", Artist: "Artist B"}}, Genres: []string{"acoustic"}},
	}}
	p := NewPipeline(idx, embedding.NewStore(), planner, nil, "v1")

	first, err := p.HybridCurate(context.Background(), "relaxing acoustic", 2, 10, nil, nil)
	if err != nil {
		t.Fatalf("HybridCurate: %v", err)
	}

	callsBefore := planner.call
	second, err := p.HybridCurate(context.Background(), "relaxing acoustic", 2, 10, nil, nil)
	if err != nil {
		t.Fatalf("HybridCurate (cached): %v", err)
	}
	if planner.call != callsBefore {
		t.Error("expected cache hit to avoid calling the planner again")
	}
	if len(first.TrackIDs) != len(second.TrackIDs) {
		t.Errorf("cached result differs: %v vs %v", first, second)
	}
}
