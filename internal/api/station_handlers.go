package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/broadcast-engine/stationcast/internal/listener"
	"github.com/broadcast-engine/stationcast/internal/registry"
	"github.com/broadcast-engine/stationcast/internal/station"
	"github.com/broadcast-engine/stationcast/internal/track"
)

type stationHandlers struct {
	catalog  *station.Catalog
	registry *registry.Registry
	tracks   *track.Index
	listener *listener.Tracker
}

func stationSummary(s *station.Station) gin.H {
	return gin.H{
		"id":          s.ID,
		"slug":        s.Slug,
		"name":        s.Name,
		"description": s.Description,
		"genres":      s.Genres,
		"active":      s.Active,
	}
}

// List handles GET /stations.
func (h *stationHandlers) List(c *gin.Context) {
	stations := h.catalog.List()
	out := make([]gin.H, 0, len(stations))
	for _, s := range stations {
		out = append(out, stationSummary(s))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stations": out})
}

// Create handles POST /stations (admin).
func (h *stationHandlers) Create(c *gin.Context) {
	var body struct {
		Slug          string                `json:"slug"`
		Name          string                `json:"name"`
		Description   string                `json:"description"`
		Genres        []string              `json:"genres"`
		TrackIDs      []string              `json:"track_ids"`
		SelectionMode station.SelectionMode `json:"selection_mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body"})
		return
	}

	createdBy, _ := c.Get("subject")
	createdByStr, _ := createdBy.(string)

	s, err := h.catalog.Create(station.CreateRequest{
		Slug:          body.Slug,
		Name:          body.Name,
		Description:   body.Description,
		Genres:        body.Genres,
		TrackIDs:      body.TrackIDs,
		CreatedBy:     createdByStr,
		SelectionMode: body.SelectionMode,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok", "station": stationSummary(s)})
}

// Patch handles PATCH /stations/:id (admin).
func (h *stationHandlers) Patch(c *gin.Context) {
	id := c.Param("id")
	var body struct {
		Name          *string                `json:"name"`
		Description   *string                `json:"description"`
		Genres        []string               `json:"genres"`
		TrackIDs      []string               `json:"track_ids"`
		SelectionMode *station.SelectionMode `json:"selection_mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body"})
		return
	}

	s, err := h.catalog.Update(id, func(s *station.Station) error {
		if body.Name != nil {
			s.Name = *body.Name
		}
		if body.Description != nil {
			s.Description = *body.Description
		}
		if body.Genres != nil {
			s.Genres = body.Genres
		}
		if body.TrackIDs != nil {
			s.TrackIDs = body.TrackIDs
		}
		if body.SelectionMode != nil {
			s.SelectionMode = *body.SelectionMode
		}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "station": stationSummary(s)})
}

// Delete handles DELETE /stations/:id (admin).
func (h *stationHandlers) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.catalog.Delete(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Start handles POST /stations/:id/start (admin).
func (h *stationHandlers) Start(c *gin.Context) {
	id := c.Param("id")
	s, ok := h.catalog.Get(id)
	if !ok {
		writeError(c, errStationNotFound(id))
		return
	}
	if err := h.registry.Start(c.Request.Context(), id, s.TrackIDs); err != nil {
		writeError(c, err)
		return
	}
	_ = h.catalog.SetActive(id, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stop handles POST /stations/:id/stop (admin).
func (h *stationHandlers) Stop(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Stop(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	_ = h.catalog.SetActive(id, false)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Skip handles POST /stations/:id/skip (admin). Blocks until the new
// track's first segment exists.
func (h *stationHandlers) Skip(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Skip(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NowPlaying handles GET /stations/:id/nowplaying.
func (h *stationHandlers) NowPlaying(c *gin.Context) {
	id := c.Param("id")
	count := h.listener.Count(id)
	np, err := h.registry.NowPlaying(id, count)
	if err != nil {
		writeError(c, err)
		return
	}
	var trackInfo gin.H
	if np.Track != nil {
		trackInfo = gin.H{
			"id":       np.Track.ID,
			"title":    np.Track.Title,
			"artist":   np.Track.Artist,
			"album":    np.Track.Album,
			"duration": np.Track.Duration,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"track":      trackInfo,
		"started_at": np.StartedAt.Format(time.RFC3339),
		"listeners":  np.Listeners,
	})
}
