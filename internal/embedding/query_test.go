package embedding

import "testing"

func vec(vals ...float32) []float32 { return vals }

func TestSimilarTo_OrdersByAscendingDistance(t *testing.T) {
	s := NewStore()
	s.Put(Record{TrackID: "target", Vector: vec(0, 0)})
	s.Put(Record{TrackID: "near", Vector: vec(1, 0)})
	s.Put(Record{TrackID: "far", Vector: vec(10, 0)})

	got := s.SimilarTo("target", nil, 2)
	if len(got) != 2 || got[0] != "near" || got[1] != "far" {
		t.Errorf("SimilarTo() = %v, want [near far]", got)
	}
}

func TestSimilarTo_ExcludesGivenIDs(t *testing.T) {
	s := NewStore()
	s.Put(Record{TrackID: "target", Vector: vec(0, 0)})
	s.Put(Record{TrackID: "near", Vector: vec(1, 0)})
	s.Put(Record{TrackID: "far", Vector: vec(10, 0)})

	got := s.SimilarTo("target", map[string]struct{}{"near": {}}, 2)
	if len(got) != 1 || got[0] != "far" {
		t.Errorf("SimilarTo() with exclusion = %v, want [far]", got)
	}
}

func TestTransition_MinimizesSumOfDistances(t *testing.T) {
	s := NewStore()
	s.Put(Record{TrackID: "a", Vector: vec(0, 0)})
	s.Put(Record{TrackID: "b", Vector: vec(10, 0)})
	s.Put(Record{TrackID: "between", Vector: vec(5, 0)})
	s.Put(Record{TrackID: "corner", Vector: vec(0, 10)})

	got := s.Transition("a", "b", nil, 1)
	if len(got) != 1 || got[0] != "between" {
		t.Errorf("Transition() = %v, want [between]", got)
	}
}

func TestProject2D_RespectsLimit(t *testing.T) {
	s := NewStore()
	for i := 0; i < 10; i++ {
		s.Put(Record{TrackID: string(rune('a' + i)), Vector: vec(float32(i), float32(i * 2)), ModelVersion: "v1"})
	}
	p := NewProjector(s)

	points := p.Project2D(3)
	if len(points) != 3 {
		t.Fatalf("Project2D(3) returned %d points, want 3", len(points))
	}
}

func TestProject2D_RecomputesOnPopulationDrift(t *testing.T) {
	s := NewStore()
	for i := 0; i < 10; i++ {
		s.Put(Record{TrackID: string(rune('a' + i)), Vector: vec(float32(i), 0)})
	}
	p := NewProjector(s)
	_ = p.Project2D(0)
	firstPopulation := p.cache.populationN

	for i := 10; i < 14; i++ {
		s.Put(Record{TrackID: string(rune('a' + i)), Vector: vec(float32(i), 0)})
	}
	_ = p.Project2D(0)

	if p.cache.populationN == firstPopulation {
		t.Error("expected projection to recompute after population grew past the drift threshold")
	}
}
