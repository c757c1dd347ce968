package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aurorahq/echomem/internal/model"
)

// tsLayout is a fixed-width UTC layout so lexicographic ordering of the
// stored text column matches chronological ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id              TEXT PRIMARY KEY,
		hash            TEXT NOT NULL UNIQUE,
		conv_id         TEXT NOT NULL,
		turn            INTEGER NOT NULL DEFAULT 0,
		speaker         TEXT NOT NULL DEFAULT 'other',
		ts              TEXT NOT NULL,
		raw_text        TEXT NOT NULL,
		normalized_text TEXT NOT NULL,
		embedding       BLOB NOT NULL,
		embed_model     TEXT NOT NULL,
		embed_dim       INTEGER NOT NULL,
		tags            TEXT,
		source          TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_memories_ts ON memories(ts);
	CREATE INDEX IF NOT EXISTS idx_memories_conv ON memories(conv_id, ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert inserts records idempotently by content hash. Rows whose hash is
// already present are skipped via INSERT OR IGNORE; the return value counts
// only newly-written rows.
func (s *SQLiteStore) Upsert(ctx context.Context, records []model.MemoryRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO memories
		 (id, hash, conv_id, turn, speaker, ts, raw_text, normalized_text, embedding, embed_model, embed_dim, tags, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	written := 0
	for i := range records {
		r := records[i]
		if err := r.Validate(); err != nil {
			return written, fmt.Errorf("record %s: %w", r.ID, err)
		}

		var tagsJSON *string
		if len(r.Tags) > 0 {
			b, _ := json.Marshal(r.Tags)
			v := string(b)
			tagsJSON = &v
		}

		res, err := stmt.ExecContext(ctx,
			r.ID, r.Hash, r.ConvID, r.Turn, string(r.Speaker),
			r.Timestamp.UTC().Format(tsLayout),
			r.RawText, r.NormalizedText, encodeVector(r.Embedding),
			r.EmbedModel, r.EmbedDim, tagsJSON, r.Source)
		if err != nil {
			return written, fmt.Errorf("insert record %s: %w", r.ID, err)
		}
		n, _ := res.RowsAffected()
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		return written, err
	}
	return written, nil
}

func (s *SQLiteStore) ScanSince(ctx context.Context, cutoff time.Time) ([]model.MemoryRecord, error) {
	return s.scan(ctx,
		`SELECT id, hash, conv_id, turn, speaker, ts, raw_text, normalized_text, embedding, embed_model, embed_dim, tags, source
		 FROM memories WHERE ts >= ? ORDER BY ts ASC, turn ASC`,
		cutoff.UTC().Format(tsLayout))
}

func (s *SQLiteStore) ScanConversation(ctx context.Context, convID string) ([]model.MemoryRecord, error) {
	return s.scan(ctx,
		`SELECT id, hash, conv_id, turn, speaker, ts, raw_text, normalized_text, embedding, embed_model, embed_dim, tags, source
		 FROM memories WHERE conv_id = ? ORDER BY ts ASC, turn ASC`,
		convID)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count)
	return count, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) scan(ctx context.Context, query string, args ...interface{}) ([]model.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.MemoryRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (model.MemoryRecord, error) {
	var r model.MemoryRecord
	var speaker, ts string
	var embedding []byte
	var tagsJSON sql.NullString

	err := row.Scan(
		&r.ID, &r.Hash, &r.ConvID, &r.Turn, &speaker, &ts,
		&r.RawText, &r.NormalizedText, &embedding,
		&r.EmbedModel, &r.EmbedDim, &tagsJSON, &r.Source,
	)
	if err != nil {
		return r, err
	}

	r.Speaker = model.ResolveSpeaker(speaker)
	r.Timestamp, err = time.Parse(tsLayout, ts)
	if err != nil {
		return r, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	r.Embedding = decodeVector(embedding)
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &r.Tags)
	}

	return r, nil
}
