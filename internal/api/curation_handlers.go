package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/broadcast-engine/stationcast/internal/curation"
	"github.com/broadcast-engine/stationcast/internal/registry"
	"github.com/broadcast-engine/stationcast/internal/track"
)

type curationHandlers struct {
	pipeline *curation.Pipeline
	registry *registry.Registry
}

// stationHistory returns the broadcasting history for an optional
// station_id, nil if none was given or the station isn't live. Gap filling
// folds these ids into its exclusion set so it never replays a track the
// station just finished.
func (h *curationHandlers) stationHistory(stationID string) []string {
	if stationID == "" || h.registry == nil {
		return nil
	}
	return h.registry.History(stationID)
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errValidation("limit must be a non-negative integer")
	}
	return n, nil
}

// SelectSeeds handles POST /ai/select-seeds.
func (h *curationHandlers) SelectSeeds(c *gin.Context) {
	var body struct {
		Query     string `json:"query"`
		SeedCount int    `json:"seed_count"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body"})
		return
	}
	seeds, genres, err := h.pipeline.SelectSeeds(c.Request.Context(), body.Query, body.SeedCount)
	if err != nil {
		writeError(c, err)
		return
	}
	seedIDs := make([]string, len(seeds))
	for i, s := range seeds {
		seedIDs[i] = s.ID
	}
	c.JSON(http.StatusOK, gin.H{"seeds": seedIDs, "genres": genres})
}

// RegenerateSeed handles POST /ai/regenerate-seed.
func (h *curationHandlers) RegenerateSeed(c *gin.Context) {
	var body struct {
		Query      string   `json:"query"`
		Position   int      `json:"position"`
		ExcludeIDs []string `json:"exclude_ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body"})
		return
	}
	seed, position, err := h.pipeline.RegenerateSeed(c.Request.Context(), body.Query, body.Position, body.ExcludeIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seed": seed.ID, "position": position})
}

// FillGaps handles POST /ai/fill-gaps.
func (h *curationHandlers) FillGaps(c *gin.Context) {
	var body struct {
		Query     string   `json:"query"`
		SeedIDs   []string `json:"seed_ids"`
		TotalSize int      `json:"total_size"`
		StationID string   `json:"station_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body"})
		return
	}
	seeds := h.pipeline.Index.GetMany(body.SeedIDs)
	genres := genresFromSeeds(seeds)
	result := h.pipeline.FillGaps(c.Request.Context(), seeds, genres, body.TotalSize, h.stationHistory(body.StationID))
	c.JSON(http.StatusOK, gin.H{
		"track_ids":    result.TrackIDs,
		"seed_count":   result.SeedCount,
		"filled_count": result.FilledCount,
	})
}

// HybridCurate handles POST /ai/hybrid-curate, the synchronous convenience
// wrapper over the same pipeline the SSE endpoint streams.
func (h *curationHandlers) HybridCurate(c *gin.Context) {
	var body struct {
		Query     string `json:"query"`
		TotalSize int    `json:"total_size"`
		StationID string `json:"station_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body"})
		return
	}
	result, err := h.pipeline.HybridCurate(c.Request.Context(), body.Query, 0, body.TotalSize, h.stationHistory(body.StationID), nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"track_ids":    result.TrackIDs,
		"seed_count":   result.SeedCount,
		"filled_count": result.FilledCount,
		"method":       result.Method,
	})
}

// HybridCurateStream handles GET /ai/hybrid-curate-stream (SSE).
func (h *curationHandlers) HybridCurateStream(c *gin.Context) {
	query := c.Query("query")
	stationID := c.Query("station_id")
	totalSize := 0
	if v := c.Query("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			totalSize = n
		}
	}

	events := make(chan curation.Event, 32)
	go func() {
		_, _ = h.pipeline.HybridCurate(c.Request.Context(), query, 0, totalSize, h.stationHistory(stationID), events)
		close(events)
	}()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Step), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func genresFromSeeds(seeds []*track.Track) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range seeds {
		for _, g := range s.Genres {
			if _, ok := seen[g]; !ok {
				seen[g] = struct{}{}
				out = append(out, g)
			}
		}
	}
	return out
}
