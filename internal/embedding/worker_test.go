package embedding

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeIndex struct {
	mu     sync.Mutex
	paths  map[string]string
	stored map[string][]float32
}

func newFakeIndex(t *testing.T, ids ...string) *fakeIndex {
	paths := make(map[string]string, len(ids))
	for _, id := range ids {
		paths[id] = writeTempFile(t)
	}
	return &fakeIndex{paths: paths, stored: make(map[string][]float32)}
}

func (f *fakeIndex) PendingTrackIDs(productionVersion string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.paths))
	for id := range f.paths {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeIndex) TrackPath(trackID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.paths[trackID]
	return p, ok
}

func (f *fakeIndex) ApplyEmbedding(trackID string, vector []float32, modelVersion string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[trackID] = vector
}

func (f *fakeIndex) ApplyTagMetadata(trackID string, genres []string, year int) {}

func TestWorker_ProcessesAllPendingTracks(t *testing.T) {
	idx := newFakeIndex(t, "t1", "t2", "t3")
	pipeline := NewPipeline(fixedDecoder{pcm: make(PCM, WindowSeconds*SampleRate)}, fixedModel{vector: rawVector(Dimensions, 1), version: "v1"})
	store := NewStore()
	w := NewWorker(pipeline, store, idx, 2)

	w.Start("v1")

	deadline := time.After(2 * time.Second)
	for {
		if w.State() == StateIdle && len(idx.stored) == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("worker did not finish in time, stored=%d state=%s", len(idx.stored), w.State())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if len(store.All()) != 3 {
		t.Errorf("store has %d records, want 3", len(store.All()))
	}
}

func TestWorker_Pause_IsNoOpWhenIdle(t *testing.T) {
	idx := newFakeIndex(t, "t1")
	pipeline := NewPipeline(fixedDecoder{pcm: make(PCM, WindowSeconds*SampleRate)}, fixedModel{vector: rawVector(Dimensions, 1), version: "v1"})
	store := NewStore()
	w := NewWorker(pipeline, store, idx, 1)

	w.Pause()
	if w.State() != StateIdle {
		t.Errorf("Pause() on an idle worker should be a no-op, got state %s", w.State())
	}
}

func TestWorker_StopReturnsToIdle(t *testing.T) {
	idx := newFakeIndex(t, "t1", "t2")
	pipeline := NewPipeline(fixedDecoder{pcm: make(PCM, WindowSeconds*SampleRate)}, fixedModel{vector: rawVector(Dimensions, 1), version: "v1"})
	store := NewStore()
	w := NewWorker(pipeline, store, idx, 1)

	w.Start("v1")
	w.Stop()

	if w.State() != StateIdle {
		t.Errorf("State() after Stop() = %s, want idle", w.State())
	}
}

// blockingModel stalls Infer until ctx is canceled, so Stop can be observed
// interrupting a track mid-Process.
type blockingModel struct {
	version string
	started chan struct{}
}

func (m blockingModel) ModelVersion() string { return m.version }

func (m blockingModel) Infer(ctx context.Context, spectrogram []float32) ([]float32, error) {
	close(m.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWorker_Stop_AbortsInFlightTrackWithoutWritingItsRow(t *testing.T) {
	idx := newFakeIndex(t, "t1")
	started := make(chan struct{})
	pipeline := NewPipeline(fixedDecoder{pcm: make(PCM, WindowSeconds*SampleRate)}, blockingModel{version: "v1", started: started})
	store := NewStore()
	w := NewWorker(pipeline, store, idx, 1)

	w.Start("v1")

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("track never entered Infer")
	}

	w.Stop()

	if w.State() != StateIdle {
		t.Errorf("State() after Stop() = %s, want idle", w.State())
	}
	if len(store.All()) != 0 {
		t.Errorf("store has %d records, want 0 (in-flight track must not be written on Stop)", len(store.All()))
	}
}
