package api

import (
	"github.com/gin-gonic/gin"

	"github.com/broadcast-engine/stationcast/internal/auth"
	"github.com/broadcast-engine/stationcast/internal/curation"
	"github.com/broadcast-engine/stationcast/internal/embedding"
	"github.com/broadcast-engine/stationcast/internal/listener"
	"github.com/broadcast-engine/stationcast/internal/registry"
	"github.com/broadcast-engine/stationcast/internal/station"
	"github.com/broadcast-engine/stationcast/internal/track"
)

// Deps collects everything the router needs to wire up handlers. main
// constructs and owns each of these; the router only reads from them.
type Deps struct {
	Auth         *auth.Auth
	Catalog      *station.Catalog
	Registry     *registry.Registry
	Index        *track.Index
	Syncer       *track.Syncer
	Listener     *listener.Tracker
	Pipeline     *curation.Pipeline
	Worker       *embedding.Worker
	Projector    *embedding.Projector
	ModelVersion string
}

// NewRouter builds the gin engine and registers every route an admin
// console or listener client can reach.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(SecurityHeadersMiddleware())

	authH := &authHandlers{a: d.Auth}
	stationH := &stationHandlers{catalog: d.Catalog, registry: d.Registry, tracks: d.Index, listener: d.Listener}
	streamH := &streamHandlers{registry: d.Registry, listener: d.Listener}
	libraryH := &libraryHandlers{index: d.Index, syncer: d.Syncer, modelVersion: d.ModelVersion}
	curationH := &curationHandlers{pipeline: d.Pipeline, registry: d.Registry}
	embeddingH := &embeddingHandlers{worker: d.Worker, projector: d.Projector, modelVersion: d.ModelVersion}

	requireAuth := AuthRequired(d.Auth)

	r.POST("/auth/login", authH.Login)

	r.GET("/stations", stationH.List)
	r.POST("/stations", requireAuth, stationH.Create)
	r.PATCH("/stations/:id", requireAuth, stationH.Patch)
	r.DELETE("/stations/:id", requireAuth, stationH.Delete)
	r.POST("/stations/:id/start", requireAuth, stationH.Start)
	r.POST("/stations/:id/stop", requireAuth, stationH.Stop)
	r.POST("/stations/:id/skip", requireAuth, stationH.Skip)
	r.GET("/stations/:id/nowplaying", stationH.NowPlaying)

	r.GET("/stations/:id/stream/playlist.m3u8", streamH.Manifest)
	r.GET("/stations/:id/stream/segment/:seq", streamH.Segment)
	r.POST("/stations/:id/listener/heartbeat", streamH.Heartbeat)
	r.POST("/stations/:id/listener/leave", streamH.Leave)

	r.GET("/library/stats", libraryH.Stats)
	r.POST("/library/sync", requireAuth, libraryH.Sync)
	r.GET("/library/sync-stream", requireAuth, libraryH.SyncStream)

	r.POST("/ai/select-seeds", requireAuth, curationH.SelectSeeds)
	r.POST("/ai/regenerate-seed", requireAuth, curationH.RegenerateSeed)
	r.POST("/ai/fill-gaps", requireAuth, curationH.FillGaps)
	r.POST("/ai/hybrid-curate", requireAuth, curationH.HybridCurate)
	r.GET("/ai/hybrid-curate-stream", requireAuth, curationH.HybridCurateStream)

	r.POST("/embeddings/index", requireAuth, embeddingH.Index)
	r.POST("/embeddings/index-stream", requireAuth, embeddingH.IndexStream)
	r.POST("/embeddings/pause", requireAuth, embeddingH.Pause)
	r.POST("/embeddings/resume", requireAuth, embeddingH.Resume)
	r.POST("/embeddings/stop", requireAuth, embeddingH.Stop)
	r.GET("/embeddings/status", requireAuth, embeddingH.Status)
	r.GET("/embeddings/visualization", embeddingH.Visualization)

	return r
}
