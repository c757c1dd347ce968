// Package ann provides an approximate nearest-neighbor search capability
// over dense float32 vectors in cosine space.
//
// The Index interface is label-addressed: the caller owns label allocation
// and reuse, the index owns distance math. A brute-force in-memory
// implementation is provided; graph-backed implementations tune themselves
// from Options.
package ann

// Match is a single result from a similarity search.
type Match struct {
	Label    int
	Distance float32 // cosine distance, lower is closer
}

// Options carries construction parameters for graph-backed indexes
// (node degree and construction/search effort). The flat index records
// but does not use them.
type Options struct {
	Degree         int
	EfConstruction int
	EfSearch       int
}

// Index is a label-addressed ANN structure. Implementations are not
// required to be safe for concurrent mutation; callers serialize access.
type Index interface {
	// Add inserts or replaces the vector at the given label. The label
	// must be within the current capacity.
	Add(label int, vector []float32) error

	// MarkDeleted tombstones a label so it is never returned by Search.
	// Unknown labels are a no-op.
	MarkDeleted(label int)

	// Search returns up to k live matches ordered by ascending distance.
	Search(query []float32, k int) []Match

	// Resize grows capacity. Growth is append-only: existing labels keep
	// their meaning. Shrinking requests are ignored.
	Resize(capacity int)

	// Capacity reports the current maximum label count.
	Capacity() int
}
