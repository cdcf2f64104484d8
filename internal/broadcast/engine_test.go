package broadcast

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/broadcast-engine/stationcast/internal/embedding"
	"github.com/broadcast-engine/stationcast/internal/errs"
	"github.com/broadcast-engine/stationcast/internal/track"
)

// fakeSource hands out a reader carrying the track id, so fakeTranscoder can
// resolve per-track PCM length without decoding real audio bytes.
type fakeSource struct {
	mu      sync.Mutex
	failing map[string]error
}

func (f *fakeSource) OpenStream(ctx context.Context, trackID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[trackID]; ok {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(trackID)), nil
}

type fakeTranscoder struct {
	samplesPerTrack int
}

func (f *fakeTranscoder) DecodeStream(ctx context.Context, r io.Reader, sampleRate int) (embedding.PCM, error) {
	return make(embedding.PCM, f.samplesPerTrack), nil
}

func (f *fakeTranscoder) EncodeTSSegment(ctx context.Context, pcm embedding.PCM, sampleRate, bitrateKbps int) ([]byte, error) {
	return []byte("ts-segment"), nil
}

type fakeTrackLookup struct {
	tracks map[string]*track.Track
}

func (f *fakeTrackLookup) Get(id string) *track.Track {
	return f.tracks[id]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TargetSegmentSeconds = 1.0
	cfg.OutputSampleRate = 100 // tiny, so samplesPerTrack stays small in tests
	cfg.SkipBarrier = 50 * time.Millisecond
	return cfg
}

func buildTask(t *testing.T, ids []string, source Source) *Task {
	t.Helper()
	lookup := &fakeTrackLookup{tracks: map[string]*track.Track{}}
	for _, id := range ids {
		lookup.tracks[id] = &track.Track{ID: id, Title: id}
	}
	transcode := &fakeTranscoder{samplesPerTrack: 100} // exactly one segment per track
	return NewTask("station-1", ids, testConfig(), source, lookup, transcode, nil)
}

// buildMultiSegmentTask gives each track enough samples for several
// segments, so the pacing-wait path (and therefore Skip mid-track) is
// actually exercised instead of every track closing in a single segment.
func buildMultiSegmentTask(t *testing.T, ids []string, source Source) *Task {
	t.Helper()
	lookup := &fakeTrackLookup{tracks: map[string]*track.Track{}}
	for _, id := range ids {
		lookup.tracks[id] = &track.Track{ID: id, Title: id}
	}
	transcode := &fakeTranscoder{samplesPerTrack: 500} // 5 segments per track
	return NewTask("station-1", ids, testConfig(), source, lookup, transcode, nil)
}

func TestTask_Start_PublishesFirstSegmentAndRuns(t *testing.T) {
	source := &fakeSource{}
	task := buildTask(t, []string{"t1", "t2"}, source)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := task.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if task.State() != StateRunning {
		t.Errorf("State() = %v, want running", task.State())
	}
	if _, status := task.Segment(0); status != SegmentReady {
		t.Errorf("Segment(0) status = %v, want ready", status)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := task.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if task.State() != StateStopped {
		t.Errorf("State() after stop = %v, want stopped", task.State())
	}
}

func TestTask_Start_EmptyPlaylistFails(t *testing.T) {
	task := buildTask(t, nil, &fakeSource{})
	err := task.Start(context.Background())
	if errs.KindOf(err) != errs.KindEmptyPlaylist {
		t.Fatalf("err = %v, want empty_playlist", err)
	}
}

func TestTask_Stop_WhenNotActiveIsNotActive(t *testing.T) {
	task := buildTask(t, []string{"t1"}, &fakeSource{})
	err := task.Stop(context.Background())
	if errs.KindOf(err) != errs.KindNotActive {
		t.Fatalf("err = %v, want not_active", err)
	}
}

func TestTask_Segment_GoneAfterStop(t *testing.T) {
	source := &fakeSource{}
	task := buildTask(t, []string{"t1", "t2"}, source)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := task.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := task.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, status := task.Segment(0); status != SegmentGone {
		t.Errorf("Segment(0) after stop = %v, want gone", status)
	}
}

func TestTask_NowPlaying_ReportsCurrentTrack(t *testing.T) {
	source := &fakeSource{}
	task := buildTask(t, []string{"t1", "t2"}, source)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := task.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer task.Stop(context.Background())

	np, err := task.NowPlaying(3)
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if np.Track == nil || np.Track.ID != "t1" {
		t.Errorf("NowPlaying.Track = %+v, want t1", np.Track)
	}
	if np.Listeners != 3 {
		t.Errorf("Listeners = %d, want 3", np.Listeners)
	}
}

func TestTask_Skip_MidTrackAdvancesToNextTrack(t *testing.T) {
	source := &fakeSource{}
	task := buildMultiSegmentTask(t, []string{"t1", "t2"}, source)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := task.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer task.Stop(context.Background())

	np, err := task.NowPlaying(0)
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if np.Track == nil || np.Track.ID != "t1" {
		t.Fatalf("NowPlaying before skip = %+v, want t1", np.Track)
	}

	// Give the encoder a moment to get into the pacing wait for a later
	// segment of t1 (buildMultiSegmentTask's fakeTranscoder makes 5 segments/track),
	// so Skip lands mid-track rather than between tracks.
	time.Sleep(100 * time.Millisecond)

	skipCtx, skipCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer skipCancel()
	if err := task.Skip(skipCtx); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	np, err = task.NowPlaying(0)
	if err != nil {
		t.Fatalf("NowPlaying after skip: %v", err)
	}
	if np.Track == nil || np.Track.ID != "t2" {
		t.Errorf("NowPlaying after skip = %+v, want t2", np.Track)
	}
}

func TestTask_Run_DegradesAfterRepeatedFailures(t *testing.T) {
	source := &fakeSource{failing: map[string]error{
		"bad1": errs.New(errs.KindDecodeError, "corrupt"),
		"bad2": errs.New(errs.KindDecodeError, "corrupt"),
		"bad3": errs.New(errs.KindDecodeError, "corrupt"),
	}}
	task := buildTask(t, []string{"bad1", "bad2", "bad3"}, source)

	events := task.Events()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := task.Start(ctx)
	if errs.KindOf(err) != errs.KindStationDegraded {
		t.Fatalf("Start err = %v, want station_degraded", err)
	}

	degraded := false
	timeout := time.After(2 * time.Second)
	for !degraded {
		select {
		case ev := <-events:
			if ev.Type == "station_degraded" {
				degraded = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for station_degraded event")
		}
	}
}
