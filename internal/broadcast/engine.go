package broadcast

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/broadcast-engine/stationcast/internal/embedding"
	"github.com/broadcast-engine/stationcast/internal/errs"
	"github.com/broadcast-engine/stationcast/internal/track"
)

// State is one of the lifecycle states a Task moves through.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Phase further distinguishes what a running Task is doing right now.
type Phase string

const (
	PhaseEncoding          Phase = "encoding"
	PhaseBetweenTracks     Phase = "between_tracks"
	PhaseAwaitingListeners Phase = "awaiting_listeners"
)

const maxConsecutiveTrackFailures = 3

// Source is the slice of the Library Source Adapter the engine needs,
// declared locally to avoid a cyclic import with internal/sourceclient
// (the same pattern used by internal/track.Source and
// internal/station.BroadcastController).
type Source interface {
	OpenStream(ctx context.Context, trackID string) (io.ReadCloser, error)
}

// TrackLookup is the slice of the Track Index the engine needs to resolve
// track metadata (duration, title) for now-playing queries.
type TrackLookup interface {
	Get(id string) *track.Track
}

// Transcoder is the slice of the ffmpeg encoder the engine needs. A real
// *ffmpeg.Encoder satisfies this implicitly.
type Transcoder interface {
	DecodeStream(ctx context.Context, r io.Reader, sampleRate int) (embedding.PCM, error)
	EncodeTSSegment(ctx context.Context, pcm embedding.PCM, sampleRate int, bitrateKbps int) ([]byte, error)
}

// ActivitySource reports when a station last had a heartbeating listener,
// used to drive the awaiting_listeners back-pressure state. Implemented by
// the Listener Tracker.
type ActivitySource interface {
	LastActivity(stationID string) (time.Time, bool)
}

// Config carries the per-station tunables.
type Config struct {
	TargetSegmentSeconds float64
	WindowSize           int
	OutputSampleRate     int
	OutputBitrateKbps    int
	SkipBarrier          time.Duration
	IdleGraceSeconds     int
}

// DefaultConfig returns the engine's stated defaults.
func DefaultConfig() Config {
	return Config{
		TargetSegmentSeconds: 2.0,
		WindowSize:           6,
		OutputSampleRate:     44100,
		OutputBitrateKbps:    192,
		SkipBarrier:          2500 * time.Millisecond,
		IdleGraceSeconds:     60,
	}
}

// NowPlaying is the response shape for the now-playing query.
type NowPlaying struct {
	Track     *track.Track
	StartedAt time.Time
	Listeners int
}

// Event is published whenever the Task's lifecycle or playback position
// changes; consumed internally (logging, future SSE fan-out) rather than
// exposed as a documented endpoint.
type Event struct {
	Type      string
	StationID string
	TrackID   string
	Cause     string
	At        time.Time
}

// Task is the single encoder task that owns segment production for one
// active station. No other task may produce segments for the same station
// enforcing an at-most-one-encode guarantee per station.
type Task struct {
	stationID string
	cfg       Config
	source    Source
	tracks    TrackLookup
	transcode Transcoder
	activity  ActivitySource

	window   *Window
	playback *PlaybackState
	events   chan Event

	mu       sync.RWMutex
	state    State
	phase    Phase
	degraded bool

	trackIDs []string
	cursor   int

	seq        uint64
	cancel     context.CancelFunc
	done       chan struct{}
	skipCh     chan struct{}
	firstSeg   sync.Once
	firstSegCh chan error
}

// NewTask builds a Task for stationID over trackIDs, the ordered playback
// list captured at Start time (a later track-list edit takes effect on the
// next Start, not mid-broadcast, matching the catalog's "no partial edits"
// atomicity).
func NewTask(stationID string, trackIDs []string, cfg Config, source Source, tracks TrackLookup, transcode Transcoder, activity ActivitySource) *Task {
	return &Task{
		stationID: stationID,
		cfg:       cfg,
		source:    source,
		tracks:    tracks,
		transcode: transcode,
		activity:  activity,
		window:    NewWindow(cfg.WindowSize),
		playback:  newPlaybackState(),
		events:    make(chan Event, 32),
		state:     StateStopped,
		trackIDs:  append([]string(nil), trackIDs...),
	}
}

// State reports the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Events exposes the task's event stream for an interested collaborator
// (logging sink, future SSE bridge) to drain.
func (t *Task) Events() <-chan Event {
	return t.events
}

func (t *Task) publish(ev Event) {
	ev.StationID = t.stationID
	ev.At = time.Now()
	select {
	case t.events <- ev:
	default:
		// Slow or absent consumer; drop rather than block the encoder loop.
	}
}

// Start launches the encoder task. It blocks until the first segment of
// the first track has been published, so a caller can trust an immediate
// manifest request will succeed, or returns empty_playlist if trackIDs is
// empty.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateStopped {
		t.mu.Unlock()
		return errs.New(errs.KindAlreadyActive, "station is already active")
	}
	if len(t.trackIDs) == 0 {
		t.mu.Unlock()
		return errs.New(errs.KindEmptyPlaylist, "station has no tracks to play")
	}
	t.state = StateStarting
	t.cursor = 0
	t.degraded = false
	t.window.Reset()
	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.skipCh = make(chan struct{}, 1)
	t.firstSeg = sync.Once{}
	t.firstSegCh = make(chan error, 1)
	t.mu.Unlock()

	go t.run(runCtx)

	select {
	case err := <-t.firstSegCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	t.state = StateRunning
	t.mu.Unlock()
	t.publish(Event{Type: "started"})
	return nil
}

// Stop cancels the encoder task and waits for it to exit, evicting the
// segment window so in-flight reads observe "gone".
func (t *Task) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateStopped {
		t.mu.Unlock()
		return errs.New(errs.KindNotActive, "station is not active")
	}
	t.state = StateStopping
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.window.Reset()
	t.mu.Lock()
	t.state = StateStopped
	t.mu.Unlock()
	t.publish(Event{Type: "stopped"})
	return nil
}

// Skip aborts the currently-building segment (bounded by the skip barrier)
// and advances to the next track, returning once the new track's first
// segment has been published.
func (t *Task) Skip(ctx context.Context) error {
	t.mu.RLock()
	if t.state != StateRunning {
		t.mu.RUnlock()
		return errs.New(errs.KindNotActive, "station is not running")
	}
	skipCh := t.skipCh
	t.mu.RUnlock()

	trackBefore, _, _ := t.playback.Snapshot()

	select {
	case skipCh <- struct{}{}:
	default:
	}

	deadline := time.After(t.cfg.SkipBarrier + 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return errs.New(errs.KindInternal, "skip did not complete before deadline")
		case <-time.After(50 * time.Millisecond):
			current, _, _ := t.playback.Snapshot()
			if current == trackBefore {
				continue
			}
			if segs, _ := t.window.Snapshot(); len(segs) > 0 && segs[len(segs)-1].TrackID == current {
				return nil
			}
		}
	}
}

// History returns the most recently played track ids for this station,
// oldest first, for curation's recent-history exclusion ring.
func (t *Task) History() []string {
	return t.playback.History()
}

// NowPlaying returns the synchronized playback view for this station.
func (t *Task) NowPlaying(listenerCount int) (NowPlaying, error) {
	if t.State() == StateStopped {
		return NowPlaying{}, errs.New(errs.KindNotActive, "station is not active")
	}
	trackID, start, _ := t.playback.Snapshot()
	tr := t.tracks.Get(trackID)
	return NowPlaying{Track: tr, StartedAt: start, Listeners: listenerCount}, nil
}

// Segment serves a single window entry by sequence number. Once the task
// is stopped every sequence reads as gone.
func (t *Task) Segment(seq uint64) (*Segment, SegmentStatus) {
	if t.State() == StateStopped {
		return nil, SegmentGone
	}
	return t.window.Get(seq)
}

// Manifest renders the current live media playlist.
func (t *Task) Manifest() (string, error) {
	return BuildManifest(t.window, t.cfg.TargetSegmentSeconds)
}

// reportFirst fires the Start/Skip rendezvous signal exactly once: nil as
// soon as any segment (including a silence substitute) is published, or an
// error if the task exits having never produced one.
func (t *Task) reportFirst(err error) {
	t.firstSeg.Do(func() {
		t.firstSegCh <- err
	})
}

// run is the encoder task's main loop.
func (t *Task) run(ctx context.Context) {
	defer close(t.done)
	defer t.reportFirst(errs.New(errs.KindInternal, "encoder task exited before producing a segment"))

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		trackID := t.trackIDs[t.cursor]
		t.playback.advance(trackID, t.cursor)
		t.setPhase(PhaseEncoding)

		err := t.playTrack(ctx, trackID)
		t.setPhase(PhaseBetweenTracks)

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			consecutiveFailures++
			t.publish(Event{Type: "track_skipped", TrackID: trackID, Cause: err.Error()})
			slog.Warn("broadcast track failed", "station", t.stationID, "track", trackID, "error", err)
			if consecutiveFailures >= maxConsecutiveTrackFailures {
				t.mu.Lock()
				t.degraded = true
				t.state = StateStopping
				t.mu.Unlock()
				t.publish(Event{Type: "station_degraded", TrackID: trackID})
				slog.Error("station degraded after repeated track failures", "station", t.stationID)
				t.reportFirst(errs.New(errs.KindStationDegraded, "station degraded after repeated track failures"))
				return
			}
		} else {
			consecutiveFailures = 0
		}

		t.cursor = (t.cursor + 1) % len(t.trackIDs)
		t.publish(Event{Type: "track_changed", TrackID: t.trackIDs[t.cursor]})
	}
}

// playTrack decodes and encodes one track into the window, pacing segment
// publication against the wall clock, and returns when the track's audio
// is exhausted, the task is cancelled, or a skip is requested.
func (t *Task) playTrack(ctx context.Context, trackID string) error {
	stream, err := t.source.OpenStream(ctx, trackID)
	if err != nil {
		if errs.KindOf(err) == errs.KindSourceUnavailable {
			return t.openWithRetry(ctx, trackID)
		}
		return err
	}
	defer stream.Close()

	pcm, err := t.transcode.DecodeStream(ctx, stream, t.cfg.OutputSampleRate)
	if err != nil {
		return errs.Wrap(errs.KindDecodeError, "failed to decode track", err)
	}

	return t.emitSegments(ctx, trackID, pcm)
}

// openWithRetry retries a transient source failure up to 3 times with
// exponential backoff, emitting silence segments between attempts so the
// window stays fresh and listener clocks do not skew.
func (t *Task) openWithRetry(ctx context.Context, trackID string) error {
	backoff := 250 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		t.emitSilenceSegment(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2

		stream, err := t.source.OpenStream(ctx, trackID)
		if err == nil {
			defer stream.Close()
			pcm, decErr := t.transcode.DecodeStream(ctx, stream, t.cfg.OutputSampleRate)
			if decErr != nil {
				return errs.Wrap(errs.KindDecodeError, "failed to decode track after retry", decErr)
			}
			return t.emitSegments(ctx, trackID, pcm)
		}
		lastErr = err
		if errs.KindOf(err) != errs.KindSourceUnavailable {
			return err
		}
	}
	return errs.Wrap(errs.KindSourceUnavailable, "source unavailable after retries", lastErr)
}

// isIdle reports whether no listener has heartbeated within the station's
// idle grace period. A nil ActivitySource (no
// listener tracker wired up, e.g. in tests) never counts as idle.
func (t *Task) isIdle() bool {
	if t.activity == nil {
		return false
	}
	last, ok := t.activity.LastActivity(t.stationID)
	if !ok {
		return false
	}
	return time.Since(last) > time.Duration(t.cfg.IdleGraceSeconds)*time.Second
}

func (t *Task) setPhase(p Phase) {
	t.mu.Lock()
	t.phase = p
	t.mu.Unlock()
}

// Phase reports the running sub-state.
func (t *Task) Phase() Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phase
}

const idleCheckInterval = 3 * time.Second

// emitSegments slices pcm into target-duration chunks, encodes each, and
// publishes it to the window with real-time pacing. While no listener has
// been active within the idle grace period it skips encoding interior
// chunks, keeping exactly one live segment present, and resumes full
// encoding within one segment period of the next listener connecting. It
// returns once the track's duration has elapsed since its first segment.
func (t *Task) emitSegments(ctx context.Context, trackID string, pcm embedding.PCM) error {
	chunkSamples := int(t.cfg.TargetSegmentSeconds * float64(t.cfg.OutputSampleRate))
	if chunkSamples <= 0 {
		chunkSamples = 1
	}

	trackStart := time.Now()
	segInTrack := 0
	offset := 0

	for offset < len(pcm) {
		select {
		case <-ctx.Done():
			return nil
		case <-t.skipCh:
			t.truncateAndClose(ctx, trackID, pcm, offset, chunkSamples)
			return nil
		default:
		}

		end := offset + chunkSamples
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk := pcm[offset:end]
		duration := time.Duration(float64(len(chunk)) / float64(t.cfg.OutputSampleRate) * float64(time.Second))

		if t.isIdle() {
			t.setPhase(PhaseAwaitingListeners)
			data, err := t.transcode.EncodeTSSegment(ctx, chunk, t.cfg.OutputSampleRate, t.cfg.OutputBitrateKbps)
			if err != nil {
				return errs.Wrap(errs.KindDecodeError, "failed to encode segment", err)
			}
			seq := t.nextSeq()
			t.window.Put(&Segment{Seq: seq, Data: data, Duration: duration, TrackID: trackID})
			t.reportFirst(nil)
			offset = end

			for offset < len(pcm) && t.isIdle() {
				select {
				case <-ctx.Done():
					return nil
				case <-t.skipCh:
					t.truncateAndClose(ctx, trackID, pcm, offset, chunkSamples)
					return nil
				case <-time.After(idleCheckInterval):
				}
				skipSamples := int(idleCheckInterval.Seconds() * float64(t.cfg.OutputSampleRate))
				offset += skipSamples
			}
			if offset > len(pcm) {
				offset = len(pcm)
			}
			continue
		}

		t.setPhase(PhaseEncoding)
		data, err := t.transcode.EncodeTSSegment(ctx, chunk, t.cfg.OutputSampleRate, t.cfg.OutputBitrateKbps)
		if err != nil {
			return errs.Wrap(errs.KindDecodeError, "failed to encode segment", err)
		}

		seq := t.nextSeq()
		t.window.Put(&Segment{Seq: seq, Data: data, Duration: duration, TrackID: trackID})
		t.reportFirst(nil)
		offset = end

		segInTrack++
		if segInTrack > 2 {
			// Keep roughly one segment of lookahead once the buffer has
			// built up, rather than encoding the whole track as fast as
			// possible.
			target := trackStart.Add(time.Duration(float64(segInTrack-1) * t.cfg.TargetSegmentSeconds * float64(time.Second)))
			if wait := time.Until(target); wait > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-t.skipCh:
					t.truncateAndClose(ctx, trackID, pcm, offset, chunkSamples)
					return nil
				case <-time.After(wait):
				}
			}
		}
	}

	// Hold the track until its full duration has elapsed on the wall clock,
	// so the next track does not start early.
	trackEnd := trackStart.Add(time.Duration(float64(len(pcm)) / float64(t.cfg.OutputSampleRate) * float64(time.Second)))
	if wait := time.Until(trackEnd); wait > 0 {
		select {
		case <-ctx.Done():
		case <-t.skipCh:
		case <-time.After(wait):
		}
	}
	return nil
}

// truncateAndClose implements the skip barrier: it closes out the
// currently-building segment for a track early, encoding only the audio
// from offset up to skip_barrier_ms worth of samples (capped at a normal
// chunk's length) rather than the full target segment duration, then
// publishes it. A no-op if the track is already exhausted.
func (t *Task) truncateAndClose(ctx context.Context, trackID string, pcm embedding.PCM, offset, chunkSamples int) {
	if offset >= len(pcm) {
		return
	}
	barrierSamples := int(t.cfg.SkipBarrier.Seconds() * float64(t.cfg.OutputSampleRate))
	if barrierSamples <= 0 || barrierSamples > chunkSamples {
		barrierSamples = chunkSamples
	}
	end := offset + barrierSamples
	if end > len(pcm) {
		end = len(pcm)
	}
	chunk := pcm[offset:end]
	duration := time.Duration(float64(len(chunk)) / float64(t.cfg.OutputSampleRate) * float64(time.Second))

	data, err := t.transcode.EncodeTSSegment(ctx, chunk, t.cfg.OutputSampleRate, t.cfg.OutputBitrateKbps)
	if err != nil {
		slog.Warn("failed to encode truncated segment on skip", "station", t.stationID, "track", trackID, "error", err)
		return
	}
	seq := t.nextSeq()
	t.window.Put(&Segment{Seq: seq, Data: data, Duration: duration, TrackID: trackID})
}

// emitSilenceSegment publishes one segment of zero-valued PCM, keeping the
// window fresh while a source retry is in flight.
func (t *Task) emitSilenceSegment(ctx context.Context) {
	samples := int(t.cfg.TargetSegmentSeconds * float64(t.cfg.OutputSampleRate))
	silence := make(embedding.PCM, samples)
	data, err := t.transcode.EncodeTSSegment(ctx, silence, t.cfg.OutputSampleRate, t.cfg.OutputBitrateKbps)
	if err != nil {
		slog.Warn("failed to encode silence segment", "station", t.stationID, "error", err)
		return
	}
	seq := t.nextSeq()
	t.window.Put(&Segment{Seq: seq, Data: data, Duration: time.Duration(t.cfg.TargetSegmentSeconds * float64(time.Second)), TrackID: ""})
	t.reportFirst(nil)
}

func (t *Task) nextSeq() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.seq
	t.seq++
	return seq
}

// Degraded reports whether the task stopped itself after repeated track
// failures, distinguishing that from an admin-requested stop.
func (t *Task) Degraded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.degraded
}

func (s State) String() string { return string(s) }
