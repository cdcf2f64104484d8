// Package curation implements the Curation Pipeline: LLM-driven seed
// selection, fuzzy resolution against the track index, and embedding-guided
// gap filling between seeds, with a degraded random-fill mode when
// embedding coverage is too thin to trust.
package curation

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/broadcast-engine/stationcast/internal/embedding"
	"github.com/broadcast-engine/stationcast/internal/errs"
	"github.com/broadcast-engine/stationcast/internal/track"
)

// Step identifies one named point in the curation progress stream.
type Step string

const (
	StepStarted             Step = "started"
	StepCheckingEmbeddings   Step = "checking_embeddings"
	StepSelectingSeeds       Step = "selecting_seeds"
	StepSeedsSelected        Step = "seeds_selected"
	StepGeneratingEmbeddings Step = "generating_embeddings"
	StepFillingGaps          Step = "filling_gaps"
	StepCompleted            Step = "completed"
	StepError                Step = "error"
)

// MethodNN and MethodRandomFill identify which gap-filling strategy
// produced a Result, surfaced in the completed event.
const (
	MethodNN         = "nearest_neighbor"
	MethodRandomFill = "random_fill"
)

// minEmbeddingCoverage is the threshold below which gap filling falls back
// to random draws from the seeds' genres.
const minEmbeddingCoverage = 0.5

// DefaultTotalSize is the default playlist length.
const DefaultTotalSize = 200

// Event is one progress update, shaped to match every variant the SSE
// schema describes; only the fields relevant to Step are populated.
type Event struct {
	Step Step `json:"step"`

	Current   int    `json:"current,omitempty"`
	Total     int    `json:"total,omitempty"`
	TrackName string `json:"track_name,omitempty"`

	Segment       int    `json:"segment,omitempty"`
	TotalSegments int     `json:"total_segments,omitempty"`
	FromSeed      string `json:"from_seed,omitempty"`
	ToSeed        string `json:"to_seed,omitempty"`

	TotalTracks int      `json:"total_tracks,omitempty"`
	SeedCount   int      `json:"seed_count,omitempty"`
	FilledCount int      `json:"filled_count,omitempty"`
	Method      string   `json:"method,omitempty"`
	TrackIDs    []string `json:"track_ids,omitempty"`

	Message string `json:"message,omitempty"`
}

// Result is the pipeline's final output: an ordered playlist plus the
// bookkeeping the completed event reports.
type Result struct {
	TrackIDs    []string `json:"track_ids"`
	SeedCount   int      `json:"seed_count"`
	FilledCount int      `json:"filled_count"`
	Method      string   `json:"method"`
}

// Pipeline wires the LLM seed planner, the track index, the embedding store,
// and the result cache into the two-phase curation flow.
type Pipeline struct {
	Index          *track.Index
	Embeddings     *embedding.Store
	Planner        SeedPlanner
	Cache          *ResultCache
	ModelVersion   string // production embedding model version
}

// NewPipeline builds a Pipeline from its collaborators.
func NewPipeline(idx *track.Index, embeddings *embedding.Store, planner SeedPlanner, cache *ResultCache, modelVersion string) *Pipeline {
	if cache == nil {
		cache = NewResultCache(0, 0)
	}
	return &Pipeline{Index: idx, Embeddings: embeddings, Planner: planner, Cache: cache, ModelVersion: modelVersion}
}

// publish sends ev on events without blocking the pipeline if nobody is
// listening (mirrors the non-blocking event fan-out idiom used elsewhere).
func publish(events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
	}
}

// SelectSeeds runs Phase 1 alone: resolves seedCount seed tracks and an
// inferred genre list for query, used directly by POST /ai/select-seeds.
func (p *Pipeline) SelectSeeds(ctx context.Context, query string, seedCount int) ([]*track.Track, []string, error) {
	if seedCount <= 0 {
		seedCount = SeedCount
	}
	stats := p.Index.Stats(p.ModelVersion)

	var seeds []*track.Track
	var genres []string
	usedArtists := make(map[string]struct{})
	excludeIDs := make(map[string]struct{})
	var excludeTitles []string

	for position := 0; position < seedCount; position++ {
		resolved, g, err := p.resolveOnePosition(ctx, query, stats, seedCount, excludeTitles, excludeIDs, usedArtists)
		if err != nil {
			return nil, nil, err
		}
		if len(genres) == 0 {
			genres = g
		}
		seeds = append(seeds, resolved)
		excludeIDs[resolved.ID] = struct{}{}
		excludeTitles = append(excludeTitles, describeSeed(SeedRequest{Title: resolved.Title, Artist: resolved.Artist}))
		usedArtists[resolved.Artist] = struct{}{}
	}

	return seeds, genres, nil
}

// resolveOnePosition resolves a single seed position, retrying up to
// MaxSeedRetries times against the LLM with growing exclusions, enforcing
// artist diversity against already-chosen seeds.
func (p *Pipeline) resolveOnePosition(ctx context.Context, query string, stats track.Stats, seedCount int, excludeTitles []string, excludeIDs map[string]struct{}, usedArtists map[string]struct{}) (*track.Track, []string, error) {
	if p.Planner == nil {
		// With no planner configured, the seed is drawn at random from the index.
		tracks := p.Index.List()
		for _, i := range rand.Perm(len(tracks)) {
			if _, excluded := excludeIDs[tracks[i].ID]; excluded {
				continue
			}
			if _, usedArtist := usedArtists[tracks[i].Artist]; !usedArtist {
				return tracks[i], tracks[i].Genres, nil
			}
		}
		return nil, nil, errs.New(errs.KindInsufficientSeeds, "no unused track left for a random seed")
	}
	for attempt := 0; attempt < MaxSeedRetries; attempt++ {
		plan, err := p.Planner.PlanSeeds(ctx, query, stats, 1, excludeTitles)
		if err != nil {
			return nil, nil, err
		}
		if len(plan.Seeds) == 0 {
			continue
		}
		req := plan.Seeds[0]

		resolved, _, ok := ResolveSeed(p.Index, req.Title, req.Artist, plan.Genres, excludeIDs)
		if !ok {
			excludeTitles = append(excludeTitles, describeSeed(req))
			continue
		}
		if _, usedArtist := usedArtists[resolved.Artist]; usedArtist {
			excludeTitles = append(excludeTitles, describeSeed(req))
			continue
		}

		return resolved, plan.Genres, nil
	}

	return nil, nil, errs.New(errs.KindInsufficientSeeds, "exhausted seed retries for this position")
}

// RegenerateSeed re-resolves a single seed position, excluding the given
// ids (typically the playlist's other seeds), used by
// POST /ai/regenerate-seed.
func (p *Pipeline) RegenerateSeed(ctx context.Context, query string, position int, excludeIDs []string) (*track.Track, int, error) {
	stats := p.Index.Stats(p.ModelVersion)
	exclude := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = struct{}{}
	}

	resolved, _, err := p.resolveOnePosition(ctx, query, stats, SeedCount, nil, exclude, map[string]struct{}{})
	if err != nil {
		return nil, position, err
	}
	return resolved, position, nil
}

// HybridCurate runs both phases end to end, short-circuiting on a cache hit
// and emitting the full progress event sequence otherwise. history carries
// the station's recently played track ids so gap filling never re-selects
// them.
func (p *Pipeline) HybridCurate(ctx context.Context, query string, seedCount, totalSize int, history []string, events chan<- Event) (Result, error) {
	if seedCount <= 0 {
		seedCount = SeedCount
	}
	if totalSize <= 0 {
		totalSize = DefaultTotalSize
	}

	publish(events, Event{Step: StepStarted})

	key := QueryHash(query, seedCount, totalSize)
	if cached, ok := p.Cache.Get(key); ok {
		publish(events, Event{
			Step: StepCompleted, TotalTracks: len(cached.TrackIDs),
			SeedCount: cached.SeedCount, FilledCount: cached.FilledCount,
			Method: cached.Method, TrackIDs: cached.TrackIDs,
		})
		return cached, nil
	}

	publish(events, Event{Step: StepCheckingEmbeddings})
	coverage := p.Index.EmbeddingCoverage(p.ModelVersion)
	degraded := coverage < minEmbeddingCoverage

	publish(events, Event{Step: StepSelectingSeeds})
	seeds, genres, err := p.SelectSeeds(ctx, query, seedCount)
	if err != nil {
		publish(events, Event{Step: StepError, Message: err.Error()})
		return Result{}, err
	}
	seedIDs := make([]string, len(seeds))
	for i, s := range seeds {
		seedIDs[i] = s.ID
	}
	publish(events, Event{Step: StepSeedsSelected, SeedCount: len(seeds), TrackIDs: seedIDs})

	result := p.fillGaps(ctx, seeds, genres, totalSize, degraded, history, events)
	p.Cache.Put(key, result)

	publish(events, Event{
		Step: StepCompleted, TotalTracks: len(result.TrackIDs),
		SeedCount: result.SeedCount, FilledCount: result.FilledCount,
		Method: result.Method, TrackIDs: result.TrackIDs,
	})
	return result, nil
}

// FillGaps runs Phase 2 alone against an already-resolved seed list, used by
// POST /ai/fill-gaps. history carries the station's recently played track
// ids so gap filling never re-selects them.
func (p *Pipeline) FillGaps(ctx context.Context, seeds []*track.Track, genres []string, totalSize int, history []string) Result {
	if totalSize <= 0 {
		totalSize = DefaultTotalSize
	}
	coverage := p.Index.EmbeddingCoverage(p.ModelVersion)
	return p.fillGaps(ctx, seeds, genres, totalSize, coverage < minEmbeddingCoverage, history, nil)
}

func (p *Pipeline) fillGaps(ctx context.Context, seeds []*track.Track, genres []string, totalSize int, degraded bool, history []string, events chan<- Event) Result {
	k := len(seeds)
	if k == 0 {
		return Result{Method: MethodNN}
	}
	if k == 1 {
		return Result{TrackIDs: []string{seeds[0].ID}, SeedCount: 1, Method: MethodNN}
	}

	gapCount := k - 1
	baseGap, remainder := 0, 0
	if totalSize > k {
		baseGap = (totalSize - k) / gapCount
		remainder = (totalSize - k) % gapCount
	}

	placed := make(map[string]struct{}, totalSize+len(history))
	for _, s := range seeds {
		placed[s.ID] = struct{}{}
	}
	for _, id := range history {
		placed[id] = struct{}{}
	}

	playlist := []string{seeds[0].ID}
	filled := 0
	method := MethodNN
	if degraded {
		method = MethodRandomFill
	}

	for i := 0; i < gapCount; i++ {
		g := baseGap
		if i < remainder {
			g++
		}
		from, to := seeds[i], seeds[i+1]
		publish(events, Event{Step: StepFillingGaps, Segment: i + 1, TotalSegments: gapCount, FromSeed: from.ID, ToSeed: to.ID})

		var gapIDs []string
		if degraded {
			gapIDs = p.randomFillGap(from, to, genres, g, placed)
		} else {
			gapIDs = p.nnFillGap(from, to, g, placed)
		}
		for _, id := range gapIDs {
			placed[id] = struct{}{}
		}
		playlist = append(playlist, gapIDs...)
		filled += len(gapIDs)
		playlist = append(playlist, to.ID)
	}

	return Result{TrackIDs: playlist, SeedCount: k, FilledCount: filled, Method: method}
}

// nnFillGap walks the embedding space from `from` toward `to`, selecting at
// each step the unplaced candidate minimizing distance to the current
// cursor while still decreasing distance to `to` — the monotonic,
// no-backtracking path.
func (p *Pipeline) nnFillGap(from, to *track.Track, g int, exclude map[string]struct{}) []string {
	if g <= 0 {
		return nil
	}

	candidateExclude := make(map[string]struct{}, len(exclude))
	for id := range exclude {
		candidateExclude[id] = struct{}{}
	}
	candidates := p.Embeddings.Transition(from.ID, to.ID, candidateExclude, g*3)

	remaining := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		remaining[id] = struct{}{}
	}

	targetRec, ok := p.Embeddings.Get(to.ID)
	if !ok {
		return nil
	}
	cursor, ok := p.Embeddings.Get(from.ID)
	if !ok {
		return nil
	}
	distToTarget := embedding.Distance(cursor.Vector, targetRec.Vector)

	var path []string
	for len(path) < g && len(remaining) > 0 {
		var best string
		var bestDist float64
		var bestToTarget float64
		found := false

		for id := range remaining {
			rec, ok := p.Embeddings.Get(id)
			if !ok {
				continue
			}
			dCursor := embedding.Distance(cursor.Vector, rec.Vector)
			dTarget := embedding.Distance(rec.Vector, targetRec.Vector)
			if dTarget >= distToTarget {
				continue // must strictly decrease distance to the destination
			}
			if !found || dCursor < bestDist {
				best, bestDist, bestToTarget, found = id, dCursor, dTarget, true
			}
		}

		if !found {
			break
		}
		path = append(path, best)
		delete(remaining, best)
		cursor, _ = p.Embeddings.Get(best)
		distToTarget = bestToTarget
	}

	return path
}

// randomFillGap draws g tracks at random from the union of genres, used
// when embedding coverage is too thin to trust nearest-neighbor walking.
func (p *Pipeline) randomFillGap(from, to *track.Track, genres []string, g int, exclude map[string]struct{}) []string {
	if g <= 0 {
		return nil
	}

	pool := make(map[string]*track.Track)
	for _, genre := range genres {
		for _, t := range p.Index.SearchGenre(genre) {
			if _, skip := exclude[t.ID]; skip {
				continue
			}
			pool[t.ID] = t
		}
	}
	if len(pool) == 0 {
		slog.Debug("curation: random fill found no genre-matching tracks", "from", from.ID, "to", to.ID)
		return nil
	}

	ids := make([]string, 0, len(pool))
	for id := range pool {
		ids = append(ids, id)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	if g > len(ids) {
		g = len(ids)
	}
	return ids[:g]
}
