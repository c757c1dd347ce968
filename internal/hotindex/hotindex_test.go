package hotindex

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aurorahq/echomem/internal/model"
	"github.com/aurorahq/echomem/internal/store"
)

const testDim = 4

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return New(nil, Options{Dim: testDim, HotWindow: 15 * time.Minute, TopK: 5}, nil)
}

func indexRecord(n int, ts time.Time) model.MemoryRecord {
	vec := make([]float32, testDim)
	vec[n%testDim] = 1
	vec[(n+1)%testDim] = float32(n) / 100
	return model.MemoryRecord{
		ID:             fmt.Sprintf("id-%d", n),
		Hash:           fmt.Sprintf("hash-%d", n),
		ConvID:         "c1",
		Turn:           n,
		Speaker:        model.SpeakerUser,
		Timestamp:      ts,
		RawText:        fmt.Sprintf("record %d", n),
		NormalizedText: fmt.Sprintf("record %d", n),
		Embedding:      vec,
		EmbedModel:     "test-model",
		EmbedDim:       testDim,
	}
}

func TestAddOrUpdate_QueryTopMatch(t *testing.T) {
	m := newTestManager(t)
	r := indexRecord(0, time.Now())
	if added := m.AddOrUpdate([]model.MemoryRecord{r}); added != 1 {
		t.Fatalf("expected 1 added, got %d", added)
	}
	results := m.Query(r.Embedding, 1)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Record.ID != r.ID {
		t.Errorf("expected %s as top match, got %s", r.ID, results[0].Record.ID)
	}
	if math.Abs(results[0].Score-1.0) > 1e-5 {
		t.Errorf("expected score ~1.0 for self query, got %f", results[0].Score)
	}
}

func TestAddOrUpdate_ReusesLabelByID(t *testing.T) {
	m := newTestManager(t)
	r := indexRecord(0, time.Now())
	m.AddOrUpdate([]model.MemoryRecord{r})

	// Re-embedding the same record updates in place.
	r.Embedding = []float32{0, 0, 1, 0}
	if added := m.AddOrUpdate([]model.MemoryRecord{r}); added != 1 {
		t.Fatalf("expected 1 updated, got %d", added)
	}
	if m.Size() != 1 {
		t.Errorf("expected size 1 after in-place update, got %d", m.Size())
	}
	results := m.Query([]float32{0, 0, 1, 0}, 1)
	if len(results) != 1 || results[0].Record.ID != r.ID {
		t.Errorf("expected updated vector to match, got %v", results)
	}
}

func TestAddOrUpdate_ReusesLabelByHash(t *testing.T) {
	m := newTestManager(t)
	r := indexRecord(0, time.Now())
	m.AddOrUpdate([]model.MemoryRecord{r})

	// Same content under a new id: same label, old id mapping dropped.
	again := r
	again.ID = "id-new"
	m.AddOrUpdate([]model.MemoryRecord{again})
	if m.Size() != 1 {
		t.Errorf("expected size 1 after hash-based update, got %d", m.Size())
	}
	results := m.Query(r.Embedding, 1)
	if len(results) != 1 || results[0].Record.ID != "id-new" {
		t.Errorf("expected re-ingested record, got %v", results)
	}
}

func TestAddOrUpdate_SkipsDimMismatch(t *testing.T) {
	m := newTestManager(t)
	good := indexRecord(0, time.Now())
	bad := indexRecord(1, time.Now())
	bad.Embedding = []float32{1, 0}
	bad.EmbedDim = 2

	if added := m.AddOrUpdate([]model.MemoryRecord{good, bad}); added != 1 {
		t.Errorf("expected only the valid record added, got %d", added)
	}
	if m.Size() != 1 {
		t.Errorf("expected size 1, got %d", m.Size())
	}
}

func TestEvictOlderThan(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	var records []model.MemoryRecord
	for i := 0; i < 6; i++ {
		records = append(records, indexRecord(i, now.Add(time.Duration(i-5)*time.Minute)))
	}
	m.AddOrUpdate(records)

	cutoff := now.Add(-3 * time.Minute)
	fresh := 0
	for _, r := range records {
		if !r.Timestamp.Before(cutoff) {
			fresh++
		}
	}

	evicted := m.EvictOlderThan(cutoff)
	if evicted != len(records)-fresh {
		t.Errorf("expected %d evicted, got %d", len(records)-fresh, evicted)
	}
	if m.Size() != fresh {
		t.Errorf("expected size %d, got %d", fresh, m.Size())
	}
	// Evicted records are no longer queryable.
	for _, r := range records {
		if r.Timestamp.Before(cutoff) {
			for _, res := range m.Query(r.Embedding, len(records)) {
				if res.Record.ID == r.ID {
					t.Errorf("evicted record %s still queryable", r.ID)
				}
			}
		}
	}
}

func TestEvictOlderThan_EmptyIndex(t *testing.T) {
	m := newTestManager(t)
	if evicted := m.EvictOlderThan(time.Now()); evicted != 0 {
		t.Errorf("expected 0 evicted on empty index, got %d", evicted)
	}
}

func TestEvict_LabelReuse(t *testing.T) {
	m := newTestManager(t)
	old := indexRecord(0, time.Now().Add(-time.Hour))
	m.AddOrUpdate([]model.MemoryRecord{old})
	if evicted := m.EvictOlderThan(time.Now()); evicted != 1 {
		t.Fatalf("expected 1 evicted, got %d", evicted)
	}

	fresh := indexRecord(1, time.Now())
	m.AddOrUpdate([]model.MemoryRecord{fresh})
	if m.Size() != 1 {
		t.Errorf("expected size 1, got %d", m.Size())
	}
	results := m.Query(fresh.Embedding, 2)
	if len(results) != 1 || results[0].Record.ID != fresh.ID {
		t.Errorf("expected only the fresh record, got %v", results)
	}
}

func TestCapacityGrowthSafety(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	// Well past the initial capacity so multiple resizes occur.
	const n = 500
	records := make([]model.MemoryRecord, 0, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, testDim)
		vec[0] = float32(math.Cos(float64(i) * 0.01))
		vec[1] = float32(math.Sin(float64(i) * 0.01))
		vec[2] = float32(i) / n
		vec[3] = 1
		r := indexRecord(i, now)
		r.Embedding = vec
		records = append(records, r)
	}
	// Insert in small batches to exercise incremental growth.
	for i := 0; i < n; i += 7 {
		end := i + 7
		if end > n {
			end = n
		}
		m.AddOrUpdate(records[i:end])
	}
	if m.Size() != n {
		t.Fatalf("expected size %d, got %d", n, m.Size())
	}
	for i := 0; i < n; i += 50 {
		results := m.Query(records[i].Embedding, 1)
		if len(results) != 1 {
			t.Fatalf("record %d: no result", i)
		}
		if results[0].Record.ID != records[i].ID {
			t.Errorf("record %d mislabeled after growth: got %s", i, results[0].Record.ID)
		}
		if math.Abs(results[0].Score-1.0) > 1e-4 {
			t.Errorf("record %d: self score %f", i, results[0].Score)
		}
	}
}

func TestQuery_ClampsTopK(t *testing.T) {
	m := newTestManager(t)
	m.AddOrUpdate([]model.MemoryRecord{indexRecord(0, time.Now()), indexRecord(1, time.Now())})
	results := m.Query([]float32{1, 0, 0, 0}, 100)
	if len(results) != 2 {
		t.Errorf("expected topk clamped to 2, got %d", len(results))
	}
}

func TestQuery_EmptyIndex(t *testing.T) {
	m := newTestManager(t)
	if results := m.Query([]float32{1, 0, 0, 0}, 5); results != nil {
		t.Errorf("expected nil on empty index, got %v", results)
	}
}

func TestRebuild(t *testing.T) {
	m := newTestManager(t)
	m.AddOrUpdate([]model.MemoryRecord{indexRecord(0, time.Now()), indexRecord(1, time.Now())})

	replacement := []model.MemoryRecord{indexRecord(2, time.Now())}
	m.Rebuild(replacement)
	if m.Size() != 1 {
		t.Fatalf("expected size 1 after rebuild, got %d", m.Size())
	}
	results := m.Query(replacement[0].Embedding, 5)
	if len(results) != 1 || results[0].Record.ID != "id-2" {
		t.Errorf("expected only rebuilt record, got %v", results)
	}
	if m.Metrics().LastRebuild == nil {
		t.Error("expected last rebuild timestamp to be set")
	}
}

func TestWarmStart(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	now := time.Now()
	inWindow := indexRecord(0, now.Add(-5*time.Minute))
	outOfWindow := indexRecord(1, now.Add(-2*time.Hour))
	if _, err := st.Upsert(ctx, []model.MemoryRecord{inWindow, outOfWindow}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	m := New(st, Options{Dim: testDim, HotWindow: 15 * time.Minute, TopK: 5}, nil)
	loaded, err := m.WarmStart(ctx)
	if err != nil {
		t.Fatalf("warm start: %v", err)
	}
	if loaded != 1 {
		t.Errorf("expected 1 record loaded, got %d", loaded)
	}
	if m.Size() != 1 {
		t.Errorf("expected size 1, got %d", m.Size())
	}
	results := m.Query(inWindow.Embedding, 1)
	if len(results) != 1 || results[0].Record.Hash != inWindow.Hash {
		t.Errorf("expected in-window record, got %v", results)
	}
}

func TestMetadataPersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hot_index", "metadata.json")
	m := New(nil, Options{Dim: testDim, HotWindow: time.Hour, MetadataPath: path}, nil)
	m.AddOrUpdate([]model.MemoryRecord{indexRecord(0, time.Now())})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected metadata content")
	}
}

func TestConcurrentQueryAndMutation(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	var records []model.MemoryRecord
	for i := 0; i < 50; i++ {
		records = append(records, indexRecord(i, now))
	}
	m.AddOrUpdate(records)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Query([]float32{1, 0, 0, 0}, 3)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 50; i < 100; i++ {
			m.AddOrUpdate([]model.MemoryRecord{indexRecord(i, now)})
		}
		m.MaintainHotWindow()
	}()
	wg.Wait()

	if m.Size() != 100 {
		t.Errorf("expected 100 records, got %d", m.Size())
	}
}
