package registry

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/broadcast-engine/stationcast/internal/broadcast"
	"github.com/broadcast-engine/stationcast/internal/embedding"
	"github.com/broadcast-engine/stationcast/internal/errs"
	"github.com/broadcast-engine/stationcast/internal/track"
)

type fakeSource struct{}

func (fakeSource) OpenStream(ctx context.Context, trackID string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(trackID)), nil
}

type fakeLookup struct {
	tracks map[string]*track.Track
}

func (f fakeLookup) Get(id string) *track.Track { return f.tracks[id] }

type fakeTranscoder struct{}

func (fakeTranscoder) DecodeStream(ctx context.Context, r io.Reader, sampleRate int) (embedding.PCM, error) {
	return make(embedding.PCM, 100), nil
}

func (fakeTranscoder) EncodeTSSegment(ctx context.Context, pcm embedding.PCM, sampleRate, bitrateKbps int) ([]byte, error) {
	return []byte("ts"), nil
}

func testRegistry() *Registry {
	cfg := broadcast.DefaultConfig()
	cfg.TargetSegmentSeconds = 1.0
	cfg.OutputSampleRate = 100
	lookup := fakeLookup{tracks: map[string]*track.Track{
		"t1": {ID: "t1", Title: "t1"},
		"t2": {ID: "t2", Title: "t2"},
	}}
	return New(cfg, fakeSource{}, lookup, fakeTranscoder{}, nil, nil)
}

func TestRegistry_Start_ThenStop(t *testing.T) {
	r := testRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.Start(ctx, "station-1", []string{"t1", "t2"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx, "station-1", []string{"t1"}); errs.KindOf(err) != errs.KindAlreadyActive {
		t.Fatalf("second Start err = %v, want already_active", err)
	}

	np, err := r.NowPlaying("station-1", 0)
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if np.Track == nil || np.Track.ID != "t1" {
		t.Errorf("NowPlaying.Track = %+v, want t1", np.Track)
	}

	if err := r.Stop(ctx, "station-1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(ctx, "station-1"); errs.KindOf(err) != errs.KindNotActive {
		t.Fatalf("second Stop err = %v, want not_active", err)
	}
}

func TestRegistry_StopIfActive_NoOpWhenNeverStarted(t *testing.T) {
	r := testRegistry()
	if err := r.StopIfActive("never-started"); err != nil {
		t.Errorf("StopIfActive on unstarted station = %v, want nil", err)
	}
}

func TestRegistry_StopIfActive_StopsRunningTask(t *testing.T) {
	r := testRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Start(ctx, "station-1", []string{"t1"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := r.StopIfActive("station-1"); err != nil {
		t.Fatalf("StopIfActive: %v", err)
	}
	if _, err := r.NowPlaying("station-1", 0); errs.KindOf(err) != errs.KindNotActive {
		t.Errorf("NowPlaying after StopIfActive err = %v, want not_active", err)
	}
}

func TestRegistry_RestoreActive_StartsEveryEntry(t *testing.T) {
	r := testRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	r.RestoreActive(ctx, []RestoreEntry{
		{StationID: "station-1", TrackIDs: []string{"t1"}},
		{StationID: "station-2", TrackIDs: []string{"t2"}},
	})

	if _, err := r.NowPlaying("station-1", 0); err != nil {
		t.Errorf("station-1 not restored: %v", err)
	}
	if _, err := r.NowPlaying("station-2", 0); err != nil {
		t.Errorf("station-2 not restored: %v", err)
	}
}

func TestRegistry_Shutdown_StopsAllTasks(t *testing.T) {
	r := testRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.Start(ctx, "station-1", []string{"t1"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx, "station-2", []string{"t2"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.Shutdown()

	if _, err := r.NowPlaying("station-1", 0); errs.KindOf(err) != errs.KindNotActive {
		t.Errorf("station-1 still active after Shutdown")
	}
	if _, err := r.NowPlaying("station-2", 0); errs.KindOf(err) != errs.KindNotActive {
		t.Errorf("station-2 still active after Shutdown")
	}
}
