package curation

import (
	"strings"

	"github.com/broadcast-engine/stationcast/internal/track"
)

// seedMatchThreshold: a seed below this trigram similarity
// against every candidate is considered unresolved and dropped.
const seedMatchThreshold = 0.6

// trigrams returns the set of overlapping 3-character substrings of s,
// lower-cased and padded with boundary markers so short strings and prefix/
// suffix differences still contribute grams.
func trigrams(s string) map[string]struct{} {
	s = "  " + strings.ToLower(strings.TrimSpace(s)) + " "
	grams := make(map[string]struct{})
	runes := []rune(s)
	for i := 0; i+3 <= len(runes); i++ {
		grams[string(runes[i:i+3])] = struct{}{}
	}
	return grams
}

// trigramSimilarity returns the Jaccard index of a's and b's trigram sets,
// 0 when both are empty.
func trigramSimilarity(a, b string) float64 {
	ga, gb := trigrams(a), trigrams(b)
	if len(ga) == 0 && len(gb) == 0 {
		return 0
	}
	intersection := 0
	for g := range ga {
		if _, ok := gb[g]; ok {
			intersection++
		}
	}
	union := len(ga) + len(gb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// compositeKey builds the title+artist composite string seed matching is
// scored against.
func compositeKey(title, artist string) string {
	return title + " " + artist
}

// resolution is a candidate track scored against a requested seed.
type resolution struct {
	track      *track.Track
	similarity float64
}

// ResolveSeed fuzzy-matches a requested {title, artist} against the index,
// excluding ids in exclude, tie-breaking first by genre overlap with
// inferredGenres then by higher play count. Returns ok=false if no candidate
// clears seedMatchThreshold.
func ResolveSeed(idx *track.Index, title, artist string, inferredGenres []string, exclude map[string]struct{}) (*track.Track, float64, bool) {
	target := compositeKey(title, artist)
	genreSet := make(map[string]struct{}, len(inferredGenres))
	for _, g := range inferredGenres {
		genreSet[strings.ToLower(g)] = struct{}{}
	}

	var best *resolution
	for _, t := range idx.List() {
		if _, skip := exclude[t.ID]; skip {
			continue
		}
		sim := trigramSimilarity(target, compositeKey(t.Title, t.Artist))
		if sim < seedMatchThreshold {
			continue
		}
		cand := resolution{track: t, similarity: sim}
		if best == nil || betterCandidate(cand, *best, genreSet) {
			best = &cand
		}
	}

	if best == nil {
		return nil, 0, false
	}
	return best.track, best.similarity, true
}

// betterCandidate orders by similarity first, then genre overlap with the
// inferred genre list, then higher play count.
func betterCandidate(a, b resolution, genreSet map[string]struct{}) bool {
	if a.similarity != b.similarity {
		return a.similarity > b.similarity
	}
	aOverlap, bOverlap := genreOverlap(a.track, genreSet), genreOverlap(b.track, genreSet)
	if aOverlap != bOverlap {
		return aOverlap > bOverlap
	}
	return a.track.PlayCount > b.track.PlayCount
}

func genreOverlap(t *track.Track, genreSet map[string]struct{}) int {
	n := 0
	for _, g := range t.Genres {
		if _, ok := genreSet[strings.ToLower(g)]; ok {
			n++
		}
	}
	return n
}
