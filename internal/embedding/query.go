package embedding

import (
	"math"
	"sort"
)

// candidate pairs a track id with a distance, used by both SimilarTo and
// Transition before trimming to k.
type candidate struct {
	id   string
	dist float64
}

// SimilarTo returns up to k track ids ordered by ascending Euclidean
// distance from target's vector, excluding target itself and any id in
// exclude.
func (s *Store) SimilarTo(targetID string, exclude map[string]struct{}, k int) []string {
	target, ok := s.Get(targetID)
	if !ok {
		return nil
	}

	all := s.All()
	candidates := make([]candidate, 0, len(all))
	for _, r := range all {
		if r.TrackID == targetID {
			continue
		}
		if _, skip := exclude[r.TrackID]; skip {
			continue
		}
		candidates = append(candidates, candidate{id: r.TrackID, dist: euclidean(target.Vector, r.Vector)})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	return topIDs(candidates, k)
}

// Transition returns tracks minimizing dist(v, v_a) + dist(v, v_b), the
// "between" heuristic used to bridge the curator's placed seeds.
func (s *Store) Transition(a, b string, exclude map[string]struct{}, k int) []string {
	va, ok := s.Get(a)
	if !ok {
		return nil
	}
	vb, ok := s.Get(b)
	if !ok {
		return nil
	}

	all := s.All()
	candidates := make([]candidate, 0, len(all))
	for _, r := range all {
		if r.TrackID == a || r.TrackID == b {
			continue
		}
		if _, skip := exclude[r.TrackID]; skip {
			continue
		}
		d := euclidean(va.Vector, r.Vector) + euclidean(vb.Vector, r.Vector)
		candidates = append(candidates, candidate{id: r.TrackID, dist: d})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	return topIDs(candidates, k)
}

func topIDs(candidates []candidate, k int) []string {
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].id
	}
	return out
}

// Distance returns the Euclidean distance between two embedding vectors,
// exported for callers (the curation gap-filling walk) that need raw
// distance rather than a ranked candidate list.
func Distance(a, b []float32) float64 {
	return euclidean(a, b)
}

func euclidean(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Point2D is one row of a cached 2D projection.
type Point2D struct {
	TrackID string  `json:"track_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// projection caches the last-computed 2D layout along with the population
// size it was computed against, so Project2D can decide whether a recompute
// is due.
type projection struct {
	points      []Point2D
	populationN int
	centroid    []float64
	axes        [2][]float64
}

// recomputeThreshold is the population-change fraction beyond
// which the cached projection is considered stale.
const recomputeThreshold = 0.10

// Projector holds the cached 2D projection over a Store's current
// embeddings, recomputed only when the population drifts past the
// configured threshold.
type Projector struct {
	store *Store
	cache projection
}

// NewProjector builds a Projector over store with an empty cache.
func NewProjector(store *Store) *Projector {
	return &Projector{store: store}
}

// Project2D returns (id, x, y) for at most limit tracks, recomputing the
// cached projection first if the population has drifted by more than
// recomputeThreshold since the last computation.
func (p *Projector) Project2D(limit int) []Point2D {
	all := p.store.All()
	if p.cache.populationN == 0 || populationDrift(p.cache.populationN, len(all)) > recomputeThreshold {
		p.recompute(all)
	}

	if limit <= 0 || limit >= len(p.cache.points) {
		return append([]Point2D{}, p.cache.points...)
	}
	return append([]Point2D{}, p.cache.points[:limit]...)
}

func populationDrift(old, new int) float64 {
	if old == 0 {
		return 1
	}
	diff := new - old
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(old)
}

// recompute derives a 2-axis projection via power-iteration PCA: the two
// directions of greatest variance in the embedding space, centered on the
// population mean. This avoids pulling in a linear-algebra dependency for
// what is, at D=100, a small dense eigenproblem.
func (p *Projector) recompute(all []Record) {
	if len(all) == 0 {
		p.cache = projection{populationN: 0}
		return
	}

	dim := len(all[0].Vector)
	centroid := make([]float64, dim)
	for _, r := range all {
		for i, x := range r.Vector {
			if i < dim {
				centroid[i] += float64(x)
			}
		}
	}
	for i := range centroid {
		centroid[i] /= float64(len(all))
	}

	centered := make([][]float64, len(all))
	for i, r := range all {
		row := make([]float64, dim)
		for j := 0; j < dim && j < len(r.Vector); j++ {
			row[j] = float64(r.Vector[j]) - centroid[j]
		}
		centered[i] = row
	}

	axis1 := powerIteration(centered, dim, nil)
	axis2 := powerIteration(centered, dim, axis1)

	points := make([]Point2D, len(all))
	for i, r := range all {
		row := centered[i]
		points[i] = Point2D{
			TrackID: r.TrackID,
			X:       dot(row, axis1),
			Y:       dot(row, axis2),
		}
	}

	p.cache = projection{
		points:      points,
		populationN: len(all),
		centroid:    centroid,
		axes:        [2][]float64{axis1, axis2},
	}
}

// powerIteration finds the dominant eigenvector of the covariance implied by
// rows, optionally deflated against a prior axis to find the second
// component.
func powerIteration(rows [][]float64, dim int, deflateAgainst []float64) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = 1
	}
	v = normalize(v)

	for iter := 0; iter < 50; iter++ {
		next := make([]float64, dim)
		for _, row := range rows {
			proj := dot(row, v)
			for i, x := range row {
				next[i] += proj * x
			}
		}
		if deflateAgainst != nil {
			proj := dot(next, deflateAgainst)
			for i, x := range deflateAgainst {
				next[i] -= proj * x
			}
		}
		next = normalize(next)
		v = next
	}
	return v
}

func normalize(v []float64) []float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
