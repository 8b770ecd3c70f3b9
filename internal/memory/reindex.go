package memory

import (
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shipwrecked/fleetcore/internal/apperr"
)

// IndexFile deletes any existing chunks for relPath and reinserts the
// chunked content of content, all inside one transaction. Chunking is
// deterministic: the same content and parameters always produce the same
// chunk set.
func (e *Engine) IndexFile(relPath, content string) error {
	tx, err := e.db.Begin()
	if err != nil {
		return apperr.StoreError("begin reindex transaction", err)
	}
	defer tx.Rollback()

	if err := reindexFileTx(tx, relPath, content, time.Now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.StoreError("commit reindex transaction", err)
	}
	return nil
}

func reindexFileTx(tx *sql.Tx, relPath, content string, now time.Time) error {
	if _, err := tx.Exec(`DELETE FROM chunks WHERE file_path = ?`, relPath); err != nil {
		return apperr.StoreError("delete existing chunks", err)
	}
	for _, span := range splitChunks(content, DefaultChunkSize, DefaultOverlap) {
		if _, err := tx.Exec(`
			INSERT INTO chunks (file_path, chunk_text, start_off, end_off, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, relPath, span.text, span.start, span.end, now); err != nil {
			return apperr.StoreError("insert chunk", err)
		}
	}
	return nil
}

// ReindexResult summarizes one incremental reindex pass.
type ReindexResult struct {
	FilesIndexed int
	FilesSkipped int
	FilesRemoved int
}

// IncrementalReindex walks every *.md file under the agent root, compares
// each file's mtime against the updated_at of its existing chunks, skips
// files that haven't changed, reindexes the rest, and removes chunks for
// files that no longer exist on disk. The whole pass runs in one
// transaction; stored paths are relative to the agent root.
func (e *Engine) IncrementalReindex() (ReindexResult, error) {
	var result ReindexResult
	now := time.Now()

	// One transaction spans the whole pass, orphan cleanup included: a
	// crash mid-walk commits nothing, so the chunk table (and its FTS
	// mirror, via triggers) never reflects a partially-reindexed tree.
	tx, err := e.db.Begin()
	if err != nil {
		return ReindexResult{}, apperr.StoreError("begin reindex transaction", err)
	}
	defer tx.Rollback()

	seen := make(map[string]bool)
	err = filepath.WalkDir(e.agentRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(e.agentRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = true

		info, err := d.Info()
		if err != nil {
			return err
		}

		existingUpdatedAt, hasChunks, err := latestChunkUpdateTx(tx, rel)
		if err != nil {
			return err
		}
		if hasChunks && !info.ModTime().After(existingUpdatedAt) {
			result.FilesSkipped++
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		if err := reindexFileTx(tx, rel, string(content), now); err != nil {
			return err
		}
		result.FilesIndexed++
		return nil
	})
	if err != nil {
		return ReindexResult{}, apperr.StoreError("walk agent root for reindex", err)
	}

	removed, err := removeOrphanedChunksTx(tx, seen)
	if err != nil {
		return ReindexResult{}, err
	}
	result.FilesRemoved = removed

	if err := tx.Commit(); err != nil {
		return ReindexResult{}, apperr.StoreError("commit reindex transaction", err)
	}
	return result, nil
}

func latestChunkUpdateTx(tx *sql.Tx, relPath string) (time.Time, bool, error) {
	row := tx.QueryRow(`SELECT updated_at FROM chunks WHERE file_path = ? ORDER BY updated_at DESC LIMIT 1`, relPath)
	var updatedAt time.Time
	if err := row.Scan(&updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, apperr.StoreError("read latest chunk update", err)
	}
	return updatedAt, true, nil
}

func removeOrphanedChunksTx(tx *sql.Tx, seen map[string]bool) (int, error) {
	rows, err := tx.Query(`SELECT DISTINCT file_path FROM chunks`)
	if err != nil {
		return 0, apperr.StoreError("list chunked file paths", err)
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, apperr.StoreError("scan chunked file path", err)
		}
		if !seen[path] {
			stale = append(stale, path)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, apperr.StoreError("iterate chunked file paths", err)
	}

	for _, path := range stale {
		if _, err := tx.Exec(`DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
			return 0, apperr.StoreError("delete orphaned chunks", err)
		}
	}
	return len(stale), nil
}
