package ann

import (
	"math"
	"testing"
)

func TestFlat_AddSearchSelfNearest(t *testing.T) {
	idx := NewFlat(3, 4, Options{})
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	for label, v := range vectors {
		if err := idx.Add(label, v); err != nil {
			t.Fatalf("add %d: %v", label, err)
		}
	}
	for label, v := range vectors {
		matches := idx.Search(v, 1)
		if len(matches) != 1 {
			t.Fatalf("expected 1 match, got %d", len(matches))
		}
		if matches[0].Label != label {
			t.Errorf("expected label %d as nearest, got %d", label, matches[0].Label)
		}
		if math.Abs(float64(matches[0].Distance)) > 1e-6 {
			t.Errorf("expected self distance ~0, got %f", matches[0].Distance)
		}
	}
}

func TestFlat_SearchOrdering(t *testing.T) {
	idx := NewFlat(2, 3, Options{})
	idx.Add(0, []float32{1, 0})
	idx.Add(1, []float32{1, 1})
	idx.Add(2, []float32{0, 1})

	matches := idx.Search([]float32{1, 0.1}, 3)
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	want := []int{0, 1, 2}
	for i, m := range matches {
		if m.Label != want[i] {
			t.Errorf("position %d: got label %d, want %d", i, m.Label, want[i])
		}
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			t.Error("matches not ordered by ascending distance")
		}
	}
}

func TestFlat_MarkDeletedExcluded(t *testing.T) {
	idx := NewFlat(2, 2, Options{})
	idx.Add(0, []float32{1, 0})
	idx.Add(1, []float32{0, 1})
	idx.MarkDeleted(0)

	matches := idx.Search([]float32{1, 0}, 2)
	if len(matches) != 1 {
		t.Fatalf("expected 1 live match, got %d", len(matches))
	}
	if matches[0].Label != 1 {
		t.Errorf("expected label 1, got %d", matches[0].Label)
	}
	// Deleting again or out of range is a no-op.
	idx.MarkDeleted(0)
	idx.MarkDeleted(99)
}

func TestFlat_AddOutOfRange(t *testing.T) {
	idx := NewFlat(2, 1, Options{})
	if err := idx.Add(1, []float32{1, 0}); err == nil {
		t.Error("expected error for out-of-range label")
	}
	if err := idx.Add(-1, []float32{1, 0}); err == nil {
		t.Error("expected error for negative label")
	}
}

func TestFlat_AddDimMismatch(t *testing.T) {
	idx := NewFlat(3, 1, Options{})
	if err := idx.Add(0, []float32{1, 0}); err == nil {
		t.Error("expected error for dim mismatch")
	}
}

func TestFlat_ResizePreservesLabels(t *testing.T) {
	idx := NewFlat(2, 2, Options{})
	idx.Add(0, []float32{1, 0})
	idx.Add(1, []float32{0, 1})

	idx.Resize(8)
	if idx.Capacity() != 8 {
		t.Fatalf("expected capacity 8, got %d", idx.Capacity())
	}
	matches := idx.Search([]float32{1, 0}, 1)
	if len(matches) != 1 || matches[0].Label != 0 {
		t.Errorf("label 0 lost after resize: %v", matches)
	}

	// Shrinking is ignored.
	idx.Resize(1)
	if idx.Capacity() != 8 {
		t.Errorf("expected shrink to be ignored, capacity %d", idx.Capacity())
	}
}

func TestFlat_AddReplacesVector(t *testing.T) {
	idx := NewFlat(2, 1, Options{})
	idx.Add(0, []float32{1, 0})
	idx.Add(0, []float32{0, 1})

	matches := idx.Search([]float32{0, 1}, 1)
	if len(matches) != 1 || matches[0].Distance > 1e-6 {
		t.Errorf("expected replaced vector to match, got %v", matches)
	}
}

func TestFlat_ZeroNormVector(t *testing.T) {
	idx := NewFlat(2, 1, Options{})
	idx.Add(0, []float32{0, 0})
	matches := idx.Search([]float32{1, 0}, 1)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Distance != 1 {
		t.Errorf("expected distance 1 for zero-norm vector, got %f", matches[0].Distance)
	}
}
