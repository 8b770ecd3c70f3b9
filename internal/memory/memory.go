// Package memory implements the per-agent hybrid memory index: a
// chunked full-text + vector store over an agent's Markdown files, plus
// the daily consolidation and MEMORY.md archival maintenance jobs.
package memory

import (
	"database/sql"
	"time"

	"github.com/shipwrecked/fleetcore/internal/apperr"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultChunkSize and DefaultOverlap are the window parameters chunking
// uses when the caller doesn't override them.
const (
	DefaultChunkSize = 1600
	DefaultOverlap   = 320
)

// Engine owns one agent's memory.db: its chunk table, FTS mirror, and
// embedding table.
type Engine struct {
	db        *sql.DB
	agentRoot string
}

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path  TEXT NOT NULL,
	chunk_text TEXT NOT NULL,
	start_off  INTEGER NOT NULL,
	end_off    INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	chunk_text,
	content='chunks',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
	INSERT INTO chunks_fts(rowid, chunk_text) VALUES (new.id, new.chunk_text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, chunk_text) VALUES ('delete', old.id, old.chunk_text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, chunk_text) VALUES ('delete', old.id, old.chunk_text);
	INSERT INTO chunks_fts(rowid, chunk_text) VALUES (new.id, new.chunk_text);
END;

CREATE TABLE IF NOT EXISTS embeddings (
	chunk_id INTEGER PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
	vector   BLOB NOT NULL,
	model    TEXT NOT NULL
);
`

// Open opens (creating if necessary) an agent's memory.db at path and
// applies the schema. agentRoot is the directory chunk paths are stored
// relative to.
func Open(path, agentRoot string) (*Engine, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, apperr.StoreError("open memory.db", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.StoreError("apply memory schema", err)
	}
	return &Engine{db: db, agentRoot: agentRoot}, nil
}

// OpenMemory opens an in-process memory.db for tests.
func OpenMemory(agentRoot string) (*Engine, error) {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared&_foreign_keys=on")
	if err != nil {
		return nil, apperr.StoreError("open in-memory memory.db", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.StoreError("apply memory schema", err)
	}
	return &Engine{db: db, agentRoot: agentRoot}, nil
}

func (e *Engine) Close() error { return e.db.Close() }

// Chunk is one row of the chunk table.
type Chunk struct {
	ID        int64
	FilePath  string
	Text      string
	Start     int
	End       int
	UpdatedAt time.Time
}
