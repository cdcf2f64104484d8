package embedding

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/broadcast-engine/stationcast/internal/errs"
)

// State is one of the batch worker's four control states.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateStopping State = "stopping"
)

// Source is the subset of the Track Index the worker needs: the pending-ids
// query and a way to fetch a track's on-disk path, without importing the
// track package's full surface (avoids a cyclic dependency).
type Source interface {
	PendingTrackIDs(productionVersion string) []string
	TrackPath(trackID string) (string, bool)
	ApplyEmbedding(trackID string, vector []float32, modelVersion string)
	MetadataSink
}

// EventType enumerates the embedding SSE schema.
type EventType string

const (
	EventStarted       EventType = "started"
	EventProcessing    EventType = "processing"
	EventTrackComplete EventType = "track_complete"
	EventTrackError    EventType = "track_error"
	EventCompleted     EventType = "completed"
	EventError         EventType = "error"
)

// Event is published on the worker's progress channel.
type Event struct {
	Type      EventType `json:"type"`
	Current   int       `json:"current,omitempty"`
	Total     int       `json:"total,omitempty"`
	TrackID   string    `json:"track_id,omitempty"`
	TrackName string    `json:"track_name,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Worker drives the pending-track batch with bounded parallelism P,
// honoring pause/resume/stop.
type Worker struct {
	pipeline *Pipeline
	store    *Store
	source   Source

	parallelism int

	mu     sync.Mutex
	state  State
	pause  chan struct{} // closed while paused is requested; workers block on it
	resume chan struct{}
	stop   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc // cancels runCtx, aborting any in-flight Process calls

	events chan Event
}

// NewWorker builds a Worker with parallelism capped at min(4, cores) per
// CPU count unless overridden by parallelism > 0.
func NewWorker(pipeline *Pipeline, store *Store, source Source, parallelism int) *Worker {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
		if parallelism > 4 {
			parallelism = 4
		}
	}
	return &Worker{
		pipeline:    pipeline,
		store:       store,
		source:      source,
		parallelism: parallelism,
		state:       StateIdle,
		events:      make(chan Event, 64),
	}
}

// Events returns the worker's progress stream, consumed by the
// /embeddings/index-stream SSE handler.
func (w *Worker) Events() <-chan Event { return w.events }

// State returns the worker's current control state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start transitions idle → running and launches the batch. The batch runs
// on its own context rooted at context.Background(), not any caller's
// request context, so an HTTP handler returning immediately after Start
// never kills the job; Stop cancels it explicitly. No-op if already running.
func (w *Worker) Start(productionVersion string) {
	w.mu.Lock()
	if w.state == StateRunning || w.state == StatePaused {
		w.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(context.Background())
	w.state = StateRunning
	w.pause = make(chan struct{})
	w.resume = make(chan struct{})
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(runCtx, productionVersion)
}

// Pause requests that in-flight items finish, then workers block. Running
// and already-paused states both tolerate this call.
func (w *Worker) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateRunning {
		return
	}
	w.state = StatePaused
	w.resume = make(chan struct{})
	close(w.pause)
}

// Resume unblocks paused workers.
func (w *Worker) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StatePaused {
		return
	}
	w.state = StateRunning
	w.pause = make(chan struct{})
	close(w.resume)
}

// Stop cancels in-flight items (marking them retryable, not failed) and
// returns the batch to idle. Cancelling the run context interrupts any
// processOne call that's mid-Process, so its row is never written.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state == StateIdle {
		w.mu.Unlock()
		return
	}
	w.state = StateStopping
	close(w.stop)
	if w.cancel != nil {
		w.cancel()
	}
	done := w.done
	w.mu.Unlock()

	<-done

	w.mu.Lock()
	w.state = StateIdle
	w.mu.Unlock()
}

func (w *Worker) run(ctx context.Context, productionVersion string) {
	defer close(w.done)

	pending := w.source.PendingTrackIDs(productionVersion)
	total := len(pending)
	publish(w.events, Event{Type: EventStarted, Total: total})

	var processed int
	var mu sync.Mutex
	sem := make(chan struct{}, w.parallelism)
	var wg sync.WaitGroup

	for _, id := range pending {
		if !w.store.Retryable(id) {
			continue
		}

		select {
		case <-w.stop:
			wg.Wait()
			w.finish(processed, total)
			return
		case <-ctx.Done():
			wg.Wait()
			w.finish(processed, total)
			return
		case <-w.pauseGate():
			// blocked until resumed or stopped
			if w.waitForResumeOrStop() {
				wg.Wait()
				w.finish(processed, total)
				return
			}
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(trackID string) {
			defer wg.Done()
			defer func() { <-sem }()

			w.processOne(ctx, trackID, productionVersion)

			mu.Lock()
			processed++
			n := processed
			mu.Unlock()
			publish(w.events, Event{Type: EventProcessing, Current: n, Total: total})
		}(id)
	}

	wg.Wait()
	w.finish(processed, total)

	w.mu.Lock()
	if w.state == StateRunning {
		w.state = StateIdle
	}
	w.mu.Unlock()
}

func (w *Worker) pauseGate() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pause
}

// waitForResumeOrStop blocks until either resume or stop fires, returning
// true if stop fired first.
func (w *Worker) waitForResumeOrStop() bool {
	w.mu.Lock()
	resume := w.resume
	stop := w.stop
	w.mu.Unlock()

	select {
	case <-resume:
		return false
	case <-stop:
		return true
	}
}

func (w *Worker) processOne(ctx context.Context, trackID, productionVersion string) {
	path, ok := w.source.TrackPath(trackID)
	if !ok {
		return
	}

	start := time.Now()
	vector, modelVersion, err := w.pipeline.Process(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			// Stop canceled this item mid-flight; leave it retryable rather
			// than counting the interruption as a model failure.
			return
		}
		kind := classifyFailure(err)
		_, exhausted := w.store.RecordFailure(trackID, kind, time.Now())
		publish(w.events, Event{Type: EventTrackError, TrackID: trackID, Message: err.Error()})
		if exhausted {
			slog.Warn("embedding: track exhausted retry attempts", "track_id", trackID, "kind", kind)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	w.store.Put(Record{
		TrackID:      trackID,
		Vector:       vector,
		ModelVersion: modelVersion,
		ComputedAt:   time.Now(),
		ProcessingMS: time.Since(start).Milliseconds(),
	})
	w.source.ApplyEmbedding(trackID, vector, modelVersion)
	enrichFromTags(w.source, trackID, path)
	publish(w.events, Event{Type: EventTrackComplete, TrackID: trackID})
}

func (w *Worker) finish(processed, total int) {
	publish(w.events, Event{Type: EventCompleted, Current: processed, Total: total})
}

func publish(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}

func classifyFailure(err error) FailureKind {
	switch errs.KindOf(err) {
	case errs.KindFileNotFound:
		return FailureFileNotFound
	case errs.KindDecodeError:
		return FailureDecodeError
	default:
		return FailureModelError
	}
}
