// Package registry owns the one process-wide map from station id to its
// live broadcasting task. It is the only component allowed to hold a task
// handle: station start/stop/skip, catalog cascade delete, and graceful
// shutdown all go through it.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/broadcast-engine/stationcast/internal/broadcast"
	"github.com/broadcast-engine/stationcast/internal/errs"
)

const drainTimeout = 10 * time.Second

// Registry tracks one broadcast.Task per active station and the shared
// dependencies needed to build a new one.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*broadcast.Task

	cfg       broadcast.Config
	source    broadcast.Source
	tracks    broadcast.TrackLookup
	transcode broadcast.Transcoder
	activity  broadcast.ActivitySource

	log *slog.Logger
}

// New builds a Registry sharing the given encoder dependencies across every
// station task it starts.
func New(cfg broadcast.Config, source broadcast.Source, tracks broadcast.TrackLookup, transcode broadcast.Transcoder, activity broadcast.ActivitySource, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		tasks:     make(map[string]*broadcast.Task),
		cfg:       cfg,
		source:    source,
		tracks:    tracks,
		transcode: transcode,
		activity:  activity,
		log:       log,
	}
}

// Start builds and launches a broadcasting task for stationID with the given
// playback order. It errors if a task for this station is already running.
func (r *Registry) Start(ctx context.Context, stationID string, trackIDs []string) error {
	r.mu.Lock()
	if _, ok := r.tasks[stationID]; ok {
		r.mu.Unlock()
		return errs.New(errs.KindAlreadyActive, "station already broadcasting")
	}
	task := broadcast.NewTask(stationID, trackIDs, r.cfg, r.source, r.tracks, r.transcode, r.activity)
	r.tasks[stationID] = task
	r.mu.Unlock()

	if err := task.Start(ctx); err != nil {
		r.mu.Lock()
		delete(r.tasks, stationID)
		r.mu.Unlock()
		return err
	}
	return nil
}

// Stop stops stationID's task, if one is running, and removes its handle.
func (r *Registry) Stop(ctx context.Context, stationID string) error {
	task, ok := r.get(stationID)
	if !ok {
		return errs.New(errs.KindNotActive, "station is not broadcasting")
	}
	err := task.Stop(ctx)
	r.mu.Lock()
	delete(r.tasks, stationID)
	r.mu.Unlock()
	return err
}

// Skip advances stationID's current task past the now-playing track.
func (r *Registry) Skip(ctx context.Context, stationID string) error {
	task, ok := r.get(stationID)
	if !ok {
		return errs.New(errs.KindNotActive, "station is not broadcasting")
	}
	return task.Skip(ctx)
}

// NowPlaying reports the current track and phase for stationID.
func (r *Registry) NowPlaying(stationID string, listenerCount int) (broadcast.NowPlaying, error) {
	task, ok := r.get(stationID)
	if !ok {
		return broadcast.NowPlaying{}, errs.New(errs.KindNotActive, "station is not broadcasting")
	}
	return task.NowPlaying(listenerCount)
}

// History returns stationID's recently played track ids, oldest first, or
// nil if the station is not currently broadcasting (nothing to exclude).
func (r *Registry) History(stationID string) []string {
	task, ok := r.get(stationID)
	if !ok {
		return nil
	}
	return task.History()
}

// Segment fetches one encoded segment for stationID by sequence number.
func (r *Registry) Segment(stationID string, seq uint64) (*broadcast.Segment, broadcast.SegmentStatus, error) {
	task, ok := r.get(stationID)
	if !ok {
		return nil, broadcast.SegmentGone, errs.New(errs.KindNotActive, "station is not broadcasting")
	}
	seg, status := task.Segment(seq)
	return seg, status, nil
}

// Manifest returns the live HLS media playlist text for stationID.
func (r *Registry) Manifest(stationID string) (string, error) {
	task, ok := r.get(stationID)
	if !ok {
		return "", errs.New(errs.KindNotActive, "station is not broadcasting")
	}
	return task.Manifest()
}

// Events returns stationID's event stream, or nil if no task is running.
func (r *Registry) Events(stationID string) <-chan broadcast.Event {
	task, ok := r.get(stationID)
	if !ok {
		return nil
	}
	return task.Events()
}

// StopIfActive satisfies station.BroadcastController: it stops stationID's
// task if one exists and is a no-op otherwise, so cascade delete never fails
// on a station that was never started.
func (r *Registry) StopIfActive(stationID string) error {
	task, ok := r.get(stationID)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	err := task.Stop(ctx)
	r.mu.Lock()
	delete(r.tasks, stationID)
	r.mu.Unlock()
	return err
}

// ClearState satisfies station.BroadcastController by dropping stationID's
// task handle without attempting another stop; used after the catalog has
// already confirmed the station no longer exists.
func (r *Registry) ClearState(stationID string) {
	r.mu.Lock()
	delete(r.tasks, stationID)
	r.mu.Unlock()
}

func (r *Registry) get(stationID string) (*broadcast.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[stationID]
	return task, ok
}

// RestoreEntry is the minimal shape of a station the registry needs to
// restart it at process start; main wiring builds these from the catalog's
// station list so that internal/registry never needs to import
// internal/station directly.
type RestoreEntry struct {
	StationID string
	TrackIDs  []string
}

// RestoreActive launches a task for every station reported active, logging
// and continuing past individual failures so one bad station can't block
// the rest of the fleet from coming back up.
func (r *Registry) RestoreActive(ctx context.Context, stations []RestoreEntry) {
	for _, st := range stations {
		if err := r.Start(ctx, st.StationID, st.TrackIDs); err != nil {
			r.log.Error("failed to restore active station", "station_id", st.StationID, "error", err)
		}
	}
}

// Shutdown stops every running task concurrently, bounded by drainTimeout.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	tasks := make(map[string]*broadcast.Task, len(r.tasks))
	for id, task := range r.tasks {
		tasks[id] = task
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for id, task := range tasks {
		wg.Add(1)
		go func(id string, task *broadcast.Task) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if err := task.Stop(ctx); err != nil {
				r.log.Error("station task failed to stop cleanly during shutdown", "station_id", id, "error", err)
			}
		}(id, task)
	}
	wg.Wait()

	r.mu.Lock()
	r.tasks = make(map[string]*broadcast.Task)
	r.mu.Unlock()
}
