package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/broadcast-engine/stationcast/config"
	"github.com/broadcast-engine/stationcast/internal/api"
	"github.com/broadcast-engine/stationcast/internal/auth"
	"github.com/broadcast-engine/stationcast/internal/broadcast"
	"github.com/broadcast-engine/stationcast/internal/curation"
	"github.com/broadcast-engine/stationcast/internal/embedding"
	"github.com/broadcast-engine/stationcast/internal/ffmpeg"
	"github.com/broadcast-engine/stationcast/internal/listener"
	"github.com/broadcast-engine/stationcast/internal/registry"
	"github.com/broadcast-engine/stationcast/internal/sourceclient"
	"github.com/broadcast-engine/stationcast/internal/station"
	"github.com/broadcast-engine/stationcast/internal/track"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("starting broadcasting engine",
		"host", cfg.Host,
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
	)

	source := sourceclient.New(sourceclient.Config{
		BaseURL:  cfg.SourceBaseURL,
		Username: cfg.SourceUsername,
		Password: cfg.SourcePassword,
		ClientID: cfg.SourceClientID,
	})

	index := track.NewIndex()
	syncer := track.NewSyncer(index, source)

	encoder := ffmpeg.NewEncoder(
		strconv.Itoa(cfg.OutputBitrateKbps)+"k",
		strconv.Itoa(cfg.OutputSampleRate),
		"1",
	)

	embeddingModelVersion := "dev"
	if cfg.EmbeddingModelPath != "" {
		embeddingModelVersion = filepath.Base(cfg.EmbeddingModelPath)
	}
	embeddingStore := embedding.NewStore()
	embeddingModel := embedding.NewExecModel(cfg.EmbeddingModelPath, embeddingModelVersion)
	embeddingDecoder := ffmpeg.PCMDecoder{SampleRate: embedding.SampleRate}
	embeddingPipeline := embedding.NewPipeline(embeddingDecoder, embeddingModel)
	embeddingWorker := embedding.NewWorker(embeddingPipeline, embeddingStore, libraryPathSource{index: index, root: cfg.MusicLibRoot}, cfg.EmbeddingWorkers)
	embeddingProjector := embedding.NewProjector(embeddingStore)

	var planner curation.SeedPlanner
	if cfg.LLMAPIKey != "" {
		planner = curation.NewOpenAIPlanner(cfg.LLMAPIKey, cfg.LLMModel)
	} else {
		slog.Warn("no LLM API key configured, AI curation picks random seeds on every call")
	}
	curationCache := curation.NewResultCache(curation.DefaultCacheCapacity, curation.DefaultCacheTTL)
	curationPipeline := curation.NewPipeline(index, embeddingStore, planner, curationCache, embeddingModelVersion)

	listenerTracker := listener.New(cfg.ListenerLeaseTTL)
	listenerTracker.SetMaxClients(cfg.MaxClients)

	broadcastCfg := broadcast.DefaultConfig()
	broadcastCfg.TargetSegmentSeconds = cfg.TargetSegmentSeconds
	broadcastCfg.WindowSize = cfg.WindowSize
	broadcastCfg.OutputSampleRate = cfg.OutputSampleRate
	broadcastCfg.OutputBitrateKbps = cfg.OutputBitrateKbps
	broadcastCfg.SkipBarrier = cfg.SkipBarrier
	broadcastCfg.IdleGraceSeconds = int(cfg.IdleGrace.Seconds())

	stationReg := registry.New(broadcastCfg, source, index, encoder, listenerTracker, slog.Default())

	storePath := filepath.Join(cfg.DataDir, "stations.json")
	stationStore, err := station.NewStore(storePath)
	if err != nil {
		slog.Error("failed to open station store", "error", err)
		os.Exit(1)
	}
	catalog := station.NewCatalog(stationStore, stationReg)
	if stationStore.Exists() {
		stations, err := stationStore.Load()
		if err != nil {
			slog.Error("failed to load persisted stations", "error", err)
			os.Exit(1)
		}
		catalog.Restore(stations)
	}

	authenticator := auth.New(auth.Config{
		Username:  cfg.DJUsername,
		Password:  cfg.DJPassword,
		JWTSecret: cfg.JWTSecret,
	})

	router := api.NewRouter(api.Deps{
		Auth:         authenticator,
		Catalog:      catalog,
		Registry:     stationReg,
		Index:        index,
		Syncer:       syncer,
		Listener:     listenerTracker,
		Pipeline:     curationPipeline,
		Worker:       embeddingWorker,
		Projector:    embeddingProjector,
		ModelVersion: embeddingModelVersion,
	})

	httpServer := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restoreEntries := make([]registry.RestoreEntry, 0)
	for _, s := range catalog.List() {
		if s.Active {
			restoreEntries = append(restoreEntries, registry.RestoreEntry{StationID: s.ID, TrackIDs: s.TrackIDs})
		}
	}
	stationReg.RestoreActive(ctx, restoreEntries)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			slog.Error("http server error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	stationReg.Shutdown()
	listenerTracker.Close()

	slog.Info("stopped")
}

// libraryPathSource adapts the Track Index to embedding.Source, resolving
// each track's stored path against the configured music library root
// before handing it to the decoder.
type libraryPathSource struct {
	index *track.Index
	root  string
}

func (s libraryPathSource) PendingTrackIDs(productionVersion string) []string {
	return s.index.PendingTrackIDs(productionVersion)
}

func (s libraryPathSource) TrackPath(trackID string) (string, bool) {
	p, ok := s.index.TrackPath(trackID)
	if !ok {
		return "", false
	}
	if s.root == "" || filepath.IsAbs(p) {
		return p, true
	}
	return filepath.Join(s.root, p), true
}

func (s libraryPathSource) ApplyEmbedding(trackID string, vector []float32, modelVersion string) {
	s.index.ApplyEmbedding(trackID, vector, modelVersion)
}

func (s libraryPathSource) ApplyTagMetadata(trackID string, genres []string, year int) {
	s.index.ApplyTagMetadata(trackID, genres, year)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
