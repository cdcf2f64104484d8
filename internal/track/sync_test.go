package track

import (
	"context"
	"strconv"
	"testing"
)

// fakeSource serves a fixed page of tracks once, then stops, modeling the
// Library Source Adapter's ListAll(cursor) contract without a network call.
type fakeSource struct {
	pages [][]*Track
}

func (f *fakeSource) ListAll(ctx context.Context, cursor string) ([]*Track, string, error) {
	idx := 0
	if cursor != "" {
		var err error
		idx, err = strconv.Atoi(cursor)
		if err != nil {
			return nil, "", err
		}
	}
	if idx >= len(f.pages) {
		return nil, "", nil
	}
	page := f.pages[idx]
	next := ""
	if idx+1 < len(f.pages) {
		next = strconv.Itoa(idx + 1)
	}
	return page, next, nil
}

func TestSyncer_FullSync_AddsAndRemoves(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(sampleTrack("stale"))

	source := &fakeSource{pages: [][]*Track{
		{sampleTrack("t1"), sampleTrack("t2")},
		{sampleTrack("t3")},
	}}
	syncer := NewSyncer(idx, source)

	if err := syncer.FullSync(context.Background(), nil); err != nil {
		t.Fatalf("FullSync: %v", err)
	}

	if idx.Contains("stale") {
		t.Error("expected stale track removed by full sync")
	}
	if idx.Count() != 3 {
		t.Errorf("Count() = %d, want 3", idx.Count())
	}
}

func TestSyncer_FullSync_IdempotentSecondRun(t *testing.T) {
	idx := NewIndex()
	source := &fakeSource{pages: [][]*Track{{sampleTrack("t1"), sampleTrack("t2")}}}
	syncer := NewSyncer(idx, source)

	if err := syncer.FullSync(context.Background(), nil); err != nil {
		t.Fatalf("first FullSync: %v", err)
	}
	first, _ := idx.MarshalJSON()

	if err := syncer.FullSync(context.Background(), nil); err != nil {
		t.Fatalf("second FullSync: %v", err)
	}
	second, _ := idx.MarshalJSON()

	if string(first) != string(second) {
		t.Error("expected a repeated sync with no source change to leave the index unchanged")
	}
}

func TestSyncer_FullSync_SkipsInvalidTracks(t *testing.T) {
	idx := NewIndex()
	invalid := &Track{ID: "", Duration: 0}
	source := &fakeSource{pages: [][]*Track{{sampleTrack("t1"), invalid}}}
	syncer := NewSyncer(idx, source)

	if err := syncer.FullSync(context.Background(), nil); err != nil {
		t.Fatalf("FullSync: %v", err)
	}
	if idx.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (invalid track should be skipped)", idx.Count())
	}
}
