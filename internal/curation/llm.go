package curation

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/broadcast-engine/stationcast/internal/errs"
	"github.com/broadcast-engine/stationcast/internal/track"
)

// SeedCount is the default number of LLM-chosen seeds.
const SeedCount = 5

// MaxSeedRetries caps attempts for a single seed position before
// the pipeline gives up with insufficient_seeds.
const MaxSeedRetries = 3

// SeedRequest is one {title, artist} candidate returned by the LLM.
type SeedRequest struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// SeedPlan is the parsed structured response from Phase 1 step 3.
type SeedPlan struct {
	Seeds  []SeedRequest `json:"seeds"`
	Genres []string      `json:"genres"`
}

// responseVariant classifies how well the model's output matched the
// requested JSON shape.
type responseVariant int

const (
	variantOK responseVariant = iota
	variantPartial
	variantMalformed
)

// SeedPlanner is the interface the curation pipeline depends on, letting
// tests substitute a fixed-response stub for the real LLM call.
type SeedPlanner interface {
	PlanSeeds(ctx context.Context, query string, stats track.Stats, count int, excludeTitles []string) (SeedPlan, error)
}

// OpenAIPlanner calls a chat-completions endpoint in JSON mode and parses
// the tagged-variant response shape.
type OpenAIPlanner struct {
	client *openai.Client
	model  string
}

// NewOpenAIPlanner builds a planner against the given API key and model.
func NewOpenAIPlanner(apiKey, model string) *OpenAIPlanner {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIPlanner{client: openai.NewClient(apiKey), model: model}
}

// PlanSeeds asks the model for count seed tracks plus an inferred genre list
// given the user's query and the library's aggregate statistics.
func (p *OpenAIPlanner) PlanSeeds(ctx context.Context, query string, stats track.Stats, count int, excludeTitles []string) (SeedPlan, error) {
	prompt := buildSeedPrompt(query, stats, count, excludeTitles)

	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: seedSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.4,
	}
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return SeedPlan{}, errs.Wrap(errs.KindInternal, "llm seed selection request failed", err)
	}
	if len(resp.Choices) == 0 {
		return SeedPlan{}, errs.New(errs.KindInternal, "llm returned no choices")
	}

	plan, variant := parseSeedPlan(resp.Choices[0].Message.Content)
	if variant == variantMalformed {
		// A malformed reply gets one retry under a stricter system prompt.
		req.Messages[0].Content = seedSystemPrompt + ` Reply with that JSON object only, with at least one seed and no other text.`
		if resp, err = p.client.CreateChatCompletion(ctx, req); err != nil {
			return SeedPlan{}, errs.Wrap(errs.KindInternal, "llm seed selection retry failed", err)
		}
		if len(resp.Choices) > 0 {
			plan, variant = parseSeedPlan(resp.Choices[0].Message.Content)
		}
	}
	if variant == variantMalformed {
		return SeedPlan{}, errs.New(errs.KindInsufficientSeeds, "llm response was not valid seed JSON")
	}
	return plan, nil
}

const seedSystemPrompt = `You are a music curator assistant for a radio station engine. ` +
	`Respond only with a JSON object of the form {"seeds": [{"title": "...", "artist": "..."}], "genres": ["..."]}. ` +
	`Choose tracks that plausibly exist in the described library, favoring the listed genres and artists when relevant.`

func buildSeedPrompt(query string, stats track.Stats, count int, excludeTitles []string) string {
	b, _ := json.Marshal(map[string]any{
		"query":        query,
		"seed_count":   count,
		"top_genres":   stats.TopGenres,
		"top_artists":  stats.TopArtists,
		"year_range":   [2]int{stats.YearMin, stats.YearMax},
		"mood_tags":    stats.MoodTags,
		"total_tracks": stats.TotalTracks,
		"exclude":      excludeTitles,
	})
	return string(b)
}

// parseSeedPlan parses the model's JSON content, classifying the outcome as
// ok (clean parse with seeds and genres), partial (seeds present but genres
// missing), or malformed (parse failed or the seeds list is empty).
func parseSeedPlan(content string) (SeedPlan, responseVariant) {
	var plan SeedPlan
	if err := json.Unmarshal([]byte(content), &plan); err != nil {
		return SeedPlan{}, variantMalformed
	}
	if len(plan.Seeds) == 0 {
		return plan, variantMalformed
	}
	if len(plan.Genres) == 0 {
		return plan, variantPartial
	}
	return plan, variantOK
}

// describeSeed renders a seed for logging and error messages without
// leaking the full prompt context.
func describeSeed(s SeedRequest) string {
	return fmt.Sprintf("%s - %s", s.Artist, s.Title)
}
