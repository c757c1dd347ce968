package ann

import (
	"fmt"
	"math"
	"sort"
)

type slot struct {
	vector []float32
	live   bool
}

// Flat is an exact brute-force cosine index implementing Index. It is the
// in-process backend for the hot index; the label arena semantics match
// what a graph-backed replacement would provide.
type Flat struct {
	dim   int
	opts  Options
	slots []slot
}

// NewFlat creates a flat cosine index for vectors of the given dimension.
func NewFlat(dim int, capacity int, opts Options) *Flat {
	if capacity < 0 {
		capacity = 0
	}
	return &Flat{
		dim:   dim,
		opts:  opts,
		slots: make([]slot, capacity),
	}
}

func (f *Flat) Add(label int, vector []float32) error {
	if label < 0 || label >= len(f.slots) {
		return fmt.Errorf("label %d out of range (capacity %d)", label, len(f.slots))
	}
	if len(vector) != f.dim {
		return fmt.Errorf("vector dim %d does not match index dim %d", len(vector), f.dim)
	}
	f.slots[label] = slot{vector: append([]float32(nil), vector...), live: true}
	return nil
}

func (f *Flat) MarkDeleted(label int) {
	if label < 0 || label >= len(f.slots) {
		return
	}
	f.slots[label].live = false
}

func (f *Flat) Search(query []float32, k int) []Match {
	if k <= 0 || len(query) != f.dim {
		return nil
	}
	matches := make([]Match, 0, k)
	for label, s := range f.slots {
		if !s.live {
			continue
		}
		matches = append(matches, Match{Label: label, Distance: cosineDistance(query, s.vector)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func (f *Flat) Resize(capacity int) {
	if capacity <= len(f.slots) {
		return
	}
	grown := make([]slot, capacity)
	copy(grown, f.slots)
	f.slots = grown
}

func (f *Flat) Capacity() int {
	return len(f.slots)
}

// cosineDistance computes 1 - cosine similarity. Zero-norm vectors are
// treated as maximally distant.
func cosineDistance(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)))
}
