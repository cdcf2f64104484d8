package track

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/broadcast-engine/stationcast/internal/errs"
)

// Source is the subset of the Library Source Adapter that the Track Index
// needs. Declared here (rather than importing internal/sourceclient
// directly) to avoid a cyclic dependency, the same narrow-interface pattern
// used throughout this engine to keep package dependencies one-directional.
type Source interface {
	ListAll(ctx context.Context, cursor string) (page []*Track, nextCursor string, err error)
}

// Syncer drives full syncs of an Index against a Source, enforcing that at
// most one sync is ever in flight, realized here as an in-process
// single-flight guard since this is a single-process engine.
type Syncer struct {
	index  *Index
	source Source

	inFlight atomic.Bool
}

// NewSyncer builds a Syncer for the given index and source.
func NewSyncer(index *Index, source Source) *Syncer {
	return &Syncer{index: index, source: source}
}

// Progress is published on a channel during FullSync so callers can relay it
// to an SSE stream (GET /library/sync-stream).
type Progress struct {
	Step    string `json:"step"` // "started" | "page" | "completed" | "error"
	Paged   int    `json:"paged,omitempty"`
	Added   int    `json:"added,omitempty"`
	Removed int    `json:"removed,omitempty"`
	Message string `json:"message,omitempty"`
}

// FullSync pages through the source's list endpoint, upserts every track by
// id, and removes ids the source no longer reports. It is idempotent:
// running it twice with no source-side change leaves the index unchanged.
//
// events may be nil; when non-nil, progress notifications are sent
// best-effort (dropped if the channel is full) so a slow SSE subscriber
// never stalls the sync itself.
func (s *Syncer) FullSync(ctx context.Context, events chan<- Progress) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return errs.New(errs.KindValidation, "a sync is already in flight")
	}
	defer s.inFlight.Store(false)

	publish(events, Progress{Step: "started"})

	seen := make(map[string]struct{})
	cursor := ""
	pages := 0
	added := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, next, err := s.source.ListAll(ctx, cursor)
		if err != nil {
			publish(events, Progress{Step: "error", Message: err.Error()})
			return err
		}

		for _, t := range page {
			if !t.Valid() {
				slog.Warn("track sync: skipping invalid track", "id", t.ID)
				continue
			}
			if _, exists := seen[t.ID]; !exists {
				if !s.index.Contains(t.ID) {
					added++
				}
				seen[t.ID] = struct{}{}
			}
			s.index.Upsert(t)
		}

		pages++
		publish(events, Progress{Step: "page", Paged: pages})

		if next == "" {
			break
		}
		cursor = next
	}

	removed := s.index.RemoveNotIn(seen)

	slog.Info("track index full sync complete",
		"pages", pages, "added", added, "removed", len(removed), "total", s.index.Count())

	publish(events, Progress{Step: "completed", Added: added, Removed: len(removed)})
	return nil
}

// IncrementalSync is a no-op alias for FullSync: index size bounds
// are assumed small enough that there is no cheaper incremental path.
func (s *Syncer) IncrementalSync(ctx context.Context, events chan<- Progress) error {
	return s.FullSync(ctx, events)
}

func publish(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}
