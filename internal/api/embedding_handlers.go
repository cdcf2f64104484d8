package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/broadcast-engine/stationcast/internal/embedding"
)

type embeddingHandlers struct {
	worker       *embedding.Worker
	projector    *embedding.Projector
	modelVersion string
}

// Index handles POST /embeddings/index, starting the batch worker and
// returning immediately; progress is only observable via status or the
// streaming variant. The worker runs on its own background-rooted context
// so the batch keeps going after this handler returns and ServeHTTP tears
// down the request context.
func (h *embeddingHandlers) Index(c *gin.Context) {
	h.worker.Start(h.modelVersion)
	c.JSON(http.StatusAccepted, gin.H{"status": "ok", "state": string(h.worker.State())})
}

// IndexStream handles POST /embeddings/index-stream (SSE). Unlike
// HybridCurateStream, the batch itself must outlive this request (a client
// that disconnects mid-stream shouldn't kill indexing), so Start is not
// given the request context either; only this handler's own event relay
// stops when the client goes away.
func (h *embeddingHandlers) IndexStream(c *gin.Context) {
	h.worker.Start(h.modelVersion)
	events := h.worker.Events()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return ev.Type != embedding.EventCompleted && ev.Type != embedding.EventError
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// Pause handles POST /embeddings/pause.
func (h *embeddingHandlers) Pause(c *gin.Context) {
	h.worker.Pause()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": string(h.worker.State())})
}

// Resume handles POST /embeddings/resume.
func (h *embeddingHandlers) Resume(c *gin.Context) {
	h.worker.Resume()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": string(h.worker.State())})
}

// Stop handles POST /embeddings/stop.
func (h *embeddingHandlers) Stop(c *gin.Context) {
	h.worker.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": string(h.worker.State())})
}

// Status handles GET /embeddings/status.
func (h *embeddingHandlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": string(h.worker.State())})
}

// Visualization handles GET /embeddings/visualization.
func (h *embeddingHandlers) Visualization(c *gin.Context) {
	limit := 500
	if v := c.Query("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, gin.H{"points": h.projector.Project2D(limit)})
}
