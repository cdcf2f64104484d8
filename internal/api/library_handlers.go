package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/broadcast-engine/stationcast/internal/track"
)

type libraryHandlers struct {
	index        *track.Index
	syncer       *track.Syncer
	modelVersion string
}

// Stats handles GET /library/stats.
func (h *libraryHandlers) Stats(c *gin.Context) {
	stats := h.index.Stats(h.modelVersion)
	c.JSON(http.StatusOK, gin.H{
		"total_tracks":   stats.TotalTracks,
		"top_genres":     stats.TopGenres,
		"top_artists":    stats.TopArtists,
		"year_min":       stats.YearMin,
		"year_max":       stats.YearMax,
		"mood_tags":      stats.MoodTags,
		"embedded_count": stats.EmbeddedCount,
	})
}

// Sync handles POST /library/sync, running a full sync to completion before
// responding (the stream variant is for callers who want live progress).
func (h *libraryHandlers) Sync(c *gin.Context) {
	if err := h.syncer.FullSync(c.Request.Context(), nil); err != nil {
		writeError(c, err)
		return
	}
	stats := h.index.Stats(h.modelVersion)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "total_tracks": stats.TotalTracks})
}

// SyncStream handles GET /library/sync-stream (SSE), relaying FullSync's
// progress events as they're published.
func (h *libraryHandlers) SyncStream(c *gin.Context) {
	events := make(chan track.Progress, 16)

	go func() {
		_ = h.syncer.FullSync(c.Request.Context(), events)
		close(events)
	}()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
