package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/broadcast-engine/stationcast/internal/broadcast"
	"github.com/broadcast-engine/stationcast/internal/errs"
	"github.com/broadcast-engine/stationcast/internal/listener"
	"github.com/broadcast-engine/stationcast/internal/registry"
)

type streamHandlers struct {
	registry *registry.Registry
	listener *listener.Tracker
}

// Manifest handles GET /stations/:id/stream/playlist.m3u8.
func (h *streamHandlers) Manifest(c *gin.Context) {
	id := c.Param("id")
	text, err := h.registry.Manifest(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "application/vnd.apple.mpegurl", []byte(text))
}

// Segment handles GET /stations/:id/stream/segment/:seq.ts.
func (h *streamHandlers) Segment(c *gin.Context) {
	id := c.Param("id")
	seqParam := strings.TrimSuffix(c.Param("seq"), ".ts")
	seq, err := strconv.ParseUint(seqParam, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid segment sequence"})
		return
	}

	seg, status, err := h.registry.Segment(id, seq)
	if err != nil {
		writeError(c, err)
		return
	}
	switch status {
	case broadcast.SegmentGone:
		c.JSON(http.StatusGone, gin.H{"status": "error", "error": "segment no longer in window", "kind": "gone"})
		return
	case broadcast.SegmentNotYet:
		c.JSON(http.StatusTooEarly, gin.H{"status": "error", "error": "segment not produced yet", "kind": "not_yet"})
		return
	}

	// A published segment is never rewritten, so every segment served from
	// the window, the head included, gets the same cache header.
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "video/mp2t", seg.Data)
}

// Heartbeat handles POST /stations/:id/listener/heartbeat.
func (h *streamHandlers) Heartbeat(c *gin.Context) {
	id := c.Param("id")
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "session_id is required"})
		return
	}
	if !h.listener.Heartbeat(id, body.SessionID) {
		writeError(c, errs.New(errs.KindCapacity, "listener capacity reached"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"listeners": h.listener.Count(id)})
}

// Leave handles POST /stations/:id/listener/leave.
func (h *streamHandlers) Leave(c *gin.Context) {
	id := c.Param("id")
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "session_id is required"})
		return
	}
	h.listener.Leave(id, body.SessionID)
	c.Status(http.StatusNoContent)
}
