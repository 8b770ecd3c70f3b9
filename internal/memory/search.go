package memory

import (
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/shipwrecked/fleetcore/internal/apperr"
)

// rrfK is the Reciprocal Rank Fusion constant used by hybrid search.
const rrfK = 60

// Hit is one search result: a chunk plus whatever scoring metadata
// produced it. Rank is the 0-based position within its own search
// method's ordering (lower is better); Score is hybrid search's combined
// RRF score (higher is better) and is zero for single-method results.
type Hit struct {
	Chunk      Chunk
	Rank       int
	Similarity float64 // vector cosine similarity, if available
	Score      float64 // hybrid RRF combined score
}

// ftsQuery turns free text into an FTS5 MATCH expression: tokens split on
// whitespace, each wrapped in double quotes with internal quotes doubled,
// joined with spaces.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// SearchFTS runs a full-text search over chunk_text, ordered by ascending
// rank (lower is better).
func (e *Engine) SearchFTS(query string, limit int) ([]Hit, error) {
	q := ftsQuery(query)
	if q == "" {
		return nil, nil
	}
	rows, err := e.db.Query(`
		SELECT c.id, c.file_path, c.chunk_text, c.start_off, c.end_off, c.updated_at, f.rank
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY f.rank ASC
		LIMIT ?
	`, q, limit)
	if err != nil {
		return nil, apperr.StoreError("fts search", err)
	}
	defer rows.Close()

	var hits []Hit
	rank := 0
	for rows.Next() {
		var c Chunk
		var ftsRank float64
		if err := rows.Scan(&c.ID, &c.FilePath, &c.Text, &c.Start, &c.End, &c.UpdatedAt, &ftsRank); err != nil {
			return nil, apperr.StoreError("scan fts hit", err)
		}
		hits = append(hits, Hit{Chunk: c, Rank: rank})
		rank++
	}
	return hits, rows.Err()
}

// encodeVector encodes a float32 vector as little-endian bytes, per the
// embedding table's storage format.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// StoreEmbedding records (or replaces) the embedding for a chunk.
func (e *Engine) StoreEmbedding(chunkID int64, vector []float32, model string) error {
	_, err := e.db.Exec(`
		INSERT INTO embeddings (chunk_id, vector, model) VALUES (?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET vector = excluded.vector, model = excluded.model
	`, chunkID, encodeVector(vector), model)
	if err != nil {
		return apperr.StoreError("store embedding", err)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SearchVector computes cosine similarity between queryVector and every
// embedded chunk, ranks by -similarity (so lower rank is still better),
// and returns the top limit.
func (e *Engine) SearchVector(queryVector []float32, limit int) ([]Hit, error) {
	rows, err := e.db.Query(`
		SELECT c.id, c.file_path, c.chunk_text, c.start_off, c.end_off, c.updated_at, emb.vector
		FROM embeddings emb
		JOIN chunks c ON c.id = emb.chunk_id
	`)
	if err != nil {
		return nil, apperr.StoreError("vector search scan", err)
	}
	defer rows.Close()

	var all []Hit
	for rows.Next() {
		var c Chunk
		var raw []byte
		if err := rows.Scan(&c.ID, &c.FilePath, &c.Text, &c.Start, &c.End, &c.UpdatedAt, &raw); err != nil {
			return nil, apperr.StoreError("scan vector hit", err)
		}
		sim := cosineSimilarity(decodeVector(raw), queryVector)
		all = append(all, Hit{Chunk: c, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreError("iterate vector hits", err)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Similarity > all[j].Similarity })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	for i := range all {
		all[i].Rank = i
	}
	return all, nil
}

// SearchHybrid fuses full-text and vector search via Reciprocal Rank
// Fusion (k=60): each method contributes the top 2*limit, combined score
// is the sum of 1/(k+rank+1) across methods a chunk appears in, and the
// final list is the top limit sorted descending by combined score. The
// vector similarity of a merged hit is preserved for display even when
// the hit also matched FTS.
func (e *Engine) SearchHybrid(query string, queryVector []float32, limit int) ([]Hit, error) {
	pull := 2 * limit
	ftsHits, err := e.SearchFTS(query, pull)
	if err != nil {
		return nil, err
	}
	vecHits, err := e.SearchVector(queryVector, pull)
	if err != nil {
		return nil, err
	}

	merged := make(map[int64]*Hit)
	order := make([]int64, 0, len(ftsHits)+len(vecHits))
	for _, h := range ftsHits {
		h := h
		merged[h.Chunk.ID] = &h
		order = append(order, h.Chunk.ID)
		merged[h.Chunk.ID].Score += 1.0 / float64(rrfK+h.Rank+1)
	}
	for _, h := range vecHits {
		if existing, ok := merged[h.Chunk.ID]; ok {
			existing.Similarity = h.Similarity
			existing.Score += 1.0 / float64(rrfK+h.Rank+1)
			continue
		}
		h := h
		merged[h.Chunk.ID] = &h
		order = append(order, h.Chunk.ID)
		merged[h.Chunk.ID].Score += 1.0 / float64(rrfK+h.Rank+1)
	}

	out := make([]Hit, 0, len(order))
	seen := make(map[int64]bool)
	for _, id := range order {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, *merged[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
