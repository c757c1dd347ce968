// Package hotindex maintains a low-latency in-memory similarity index over
// recently ingested records, kept in sync with the durable store.
package hotindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aurorahq/echomem/internal/ann"
	"github.com/aurorahq/echomem/internal/model"
	"github.com/aurorahq/echomem/internal/store"
)

const (
	minCapacity = 128
	headroom    = 16
)

// Options configures the hot index.
type Options struct {
	Dim          int
	HotWindow    time.Duration
	TopK         int
	ANN          ann.Options
	MetadataPath string // empty disables metadata persistence
}

// Metrics are operational counters for the hot index.
type Metrics struct {
	Size         int        `json:"size"`
	LastRebuild  *time.Time `json:"last_rebuild,omitempty"`
	LastEviction *time.Time `json:"last_eviction,omitempty"`
}

// Result is a single similarity match.
type Result struct {
	Record model.MemoryRecord
	Score  float64 // max(0, 1 - cosine distance)
}

// Manager owns the slot-label lifecycle over an ANN index: a dense label
// arena with a free-list, plus id and hash lookups so re-ingested content
// updates in place. Mutations are serialized; queries share a read lock.
type Manager struct {
	opts   Options
	store  store.Store
	logger *slog.Logger

	mu          sync.RWMutex
	index       ann.Index
	nextLabel   int
	freeLabels  []int
	records     map[int]model.MemoryRecord
	idToLabel   map[string]int
	hashToLabel map[string]int
	metrics     Metrics
}

// New creates a hot index manager backed by the given durable store.
func New(st store.Store, opts Options, logger *slog.Logger) *Manager {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:        opts,
		store:       st,
		logger:      logger.With("component", "hotindex"),
		index:       ann.NewFlat(opts.Dim, minCapacity, opts.ANN),
		records:     make(map[int]model.MemoryRecord),
		idToLabel:   make(map[string]int),
		hashToLabel: make(map[string]int),
	}
}

// Size returns the number of live records.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Metrics returns a snapshot of the operational counters.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// AddOrUpdate inserts or updates records, reusing labels for records seen
// before by id or hash. Records whose vector dimensionality does not match
// the configured embedding dimension are skipped, not fatal. Returns the
// count of records actually added or updated.
func (m *Manager) AddOrUpdate(records []model.MemoryRecord) int {
	if len(records) == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	added := m.addLocked(records)
	m.finishMutation()
	return added
}

// EvictOlderThan removes records with a timestamp before the cutoff,
// returning their labels to the free-list. Safe on an empty index.
func (m *Manager) EvictOlderThan(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return 0
	}
	cutoff = cutoff.UTC()
	evicted := 0
	for label, record := range m.records {
		if record.Timestamp.Before(cutoff) {
			m.index.MarkDeleted(label)
			delete(m.records, label)
			delete(m.idToLabel, record.ID)
			delete(m.hashToLabel, record.Hash)
			m.freeLabels = append(m.freeLabels, label)
			evicted++
		}
	}
	if evicted > 0 {
		now := time.Now().UTC()
		m.metrics.LastEviction = &now
		m.finishMutation()
	}
	return evicted
}

// MaintainHotWindow evicts everything older than the configured window.
// This is the periodic maintenance entry point.
func (m *Manager) MaintainHotWindow() int {
	return m.EvictOlderThan(time.Now().Add(-m.opts.HotWindow))
}

// Query returns up to topK (record, score) pairs ordered by descending
// similarity. topK <= 0 uses the configured default; it is clamped to the
// number of live records. An empty index returns no results.
func (m *Manager) Query(vector []float32, topK int) []Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return nil
	}
	if topK <= 0 {
		topK = m.opts.TopK
	}
	if topK > len(m.records) {
		topK = len(m.records)
	}
	matches := m.index.Search(vector, topK)
	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		record, ok := m.records[match.Label]
		if !ok {
			continue
		}
		score := 1 - float64(match.Distance)
		if score < 0 {
			score = 0
		}
		results = append(results, Result{Record: record, Score: score})
	}
	return results
}

// Rebuild discards all index state and re-adds the given records from
// scratch. Used for warm start and manual cache repair.
func (m *Manager) Rebuild(records []model.MemoryRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	capacity := len(records) + headroom
	if capacity < minCapacity {
		capacity = minCapacity
	}
	m.index = ann.NewFlat(m.opts.Dim, capacity, m.opts.ANN)
	m.nextLabel = 0
	m.freeLabels = m.freeLabels[:0]
	clear(m.records)
	clear(m.idToLabel)
	clear(m.hashToLabel)
	m.addLocked(records)
	now := time.Now().UTC()
	m.metrics.LastRebuild = &now
	m.finishMutation()
}

// WarmStart rebuilds the hot index from durable records within the hot
// window. Returns the number of records loaded.
func (m *Manager) WarmStart(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.opts.HotWindow)
	records, err := m.store.ScanSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("scan hot window: %w", err)
	}
	m.logger.Info("warming hot index", "records", len(records), "window", m.opts.HotWindow)
	m.Rebuild(records)
	return len(records), nil
}

// addLocked inserts records under the mutation lock, returning the count
// actually added or updated.
func (m *Manager) addLocked(records []model.MemoryRecord) int {
	if len(records) == 0 {
		return 0
	}
	m.ensureCapacity(len(m.records) + len(records) + headroom)
	added := 0
	for i := range records {
		record := records[i]
		if len(record.Embedding) != m.opts.Dim {
			m.logger.Warn("skipping record with mismatched vector dim",
				"id", record.ID, "dim", len(record.Embedding), "expected", m.opts.Dim)
			continue
		}
		label, fresh := m.lookupOrAllocate(record)
		if err := m.index.Add(label, record.Embedding); err != nil {
			if fresh {
				m.freeLabels = append(m.freeLabels, label)
			}
			m.logger.Warn("skipping record rejected by ann index", "id", record.ID, "error", err)
			continue
		}
		if prev, ok := m.records[label]; ok {
			delete(m.idToLabel, prev.ID)
			delete(m.hashToLabel, prev.Hash)
		}
		m.records[label] = record
		m.idToLabel[record.ID] = label
		m.hashToLabel[record.Hash] = label
		added++
	}
	return added
}

// lookupOrAllocate finds an existing label by id, then by hash (covers
// re-ingestion of identical content under a new id), then allocates.
func (m *Manager) lookupOrAllocate(record model.MemoryRecord) (label int, fresh bool) {
	if label, ok := m.idToLabel[record.ID]; ok {
		return label, false
	}
	if label, ok := m.hashToLabel[record.Hash]; ok {
		return label, false
	}
	if n := len(m.freeLabels); n > 0 {
		label = m.freeLabels[n-1]
		m.freeLabels = m.freeLabels[:n-1]
		return label, true
	}
	label = m.nextLabel
	m.nextLabel++
	m.ensureCapacity(label + 1)
	return label, true
}

// ensureCapacity grows the ANN structure by factor, never shrinking, so
// resizes amortize and existing labels keep their meaning.
func (m *Manager) ensureCapacity(needed int) {
	current := m.index.Capacity()
	if needed <= current {
		return
	}
	grown := current + current/2
	if grown < needed {
		grown = needed
	}
	if grown < minCapacity {
		grown = minCapacity
	}
	m.index.Resize(grown)
}

// finishMutation refreshes the size metric and persists metadata,
// best-effort.
func (m *Manager) finishMutation() {
	m.metrics.Size = len(m.records)
	if err := m.persistMetadata(); err != nil {
		m.logger.Debug("failed to persist hot index metadata", "error", err)
	}
}

// persistMetadata writes the metrics snapshot to disk. Callers may ignore
// the error; the index itself is unaffected.
func (m *Manager) persistMetadata() error {
	if m.opts.MetadataPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.opts.MetadataPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.metrics, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.opts.MetadataPath, data, 0o644)
}
