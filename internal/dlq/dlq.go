// Package dlq persists failed ingest payloads for later inspection and
// replay. Writes are best-effort: a DLQ failure must never block the
// pipeline that is already propagating the original error.
package dlq

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entry is the on-disk shape of one dead-lettered payload.
type Entry struct {
	Reason     string         `json:"reason"`
	ReceivedAt time.Time      `json:"received_at"`
	Body       string         `json:"body"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Queue is an append-only file-per-failure dead-letter sink.
type Queue struct {
	root    string
	entropy *rand.Rand
}

// New creates the DLQ directory if needed.
func New(root string) (*Queue, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq dir: %w", err)
	}
	return &Queue{
		root:    root,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Dir returns the queue's root directory.
func (q *Queue) Dir() string {
	return q.root
}

// Write persists one failing payload and returns the created path. The
// filename is the UTC receive time plus a ULID suffix so entries sort
// chronologically and never collide.
func (q *Queue) Write(body []byte, reason string, extra map[string]any) (string, error) {
	now := time.Now().UTC()
	entry := Entry{
		Reason:     reason,
		ReceivedAt: now,
		Body:       string(body),
		Extra:      extra,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal dlq entry: %w", err)
	}
	name := now.Format("20060102T150405.000000000") + "_" + ulid.MustNew(ulid.Timestamp(now), q.entropy).String() + ".json"
	path := filepath.Join(q.root, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write dlq entry: %w", err)
	}
	return path, nil
}

// List returns all entry paths sorted by filename (chronological).
func (q *Queue) List() ([]string, error) {
	dirEntries, err := os.ReadDir(q.root)
	if err != nil {
		return nil, fmt.Errorf("read dlq dir: %w", err)
	}
	var paths []string
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(q.root, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Read loads an entry from disk.
func Read(path string) (Entry, error) {
	var entry Entry
	data, err := os.ReadFile(path)
	if err != nil {
		return entry, fmt.Errorf("read dlq entry: %w", err)
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, fmt.Errorf("decode dlq entry %s: %w", path, err)
	}
	return entry, nil
}

// Remove deletes a replayed entry.
func Remove(path string) error {
	return os.Remove(path)
}
