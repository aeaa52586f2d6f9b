package sqlite

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/store"
)

func (d *DB) UpsertMemoryEmbedding(ctx context.Context, upsert *store.MemoryEmbedding) (*store.MemoryEmbedding, error) {
	embedding, err := json.Marshal(upsert.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal embedding")
	}

	now := time.Now().Unix()
	stmt := `
		INSERT INTO memory_embedding (memory_id, embedding, model, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (memory_id, model)
		DO UPDATE SET embedding = excluded.embedding, updated_ts = excluded.updated_ts
		RETURNING id, created_ts, updated_ts
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.MemoryID,
		string(embedding),
		upsert.Model,
		now,
		now,
	).Scan(&upsert.ID, &upsert.CreatedTs, &upsert.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert memory embedding")
	}
	return upsert, nil
}

func (d *DB) DeleteMemoryEmbedding(ctx context.Context, memoryID int32) error {
	// Idempotent: deleting a memory without an embedding is not an error.
	if _, err := d.db.ExecContext(ctx, `DELETE FROM memory_embedding WHERE memory_id = ?`, memoryID); err != nil {
		return errors.Wrap(err, "failed to delete memory embedding")
	}
	return nil
}

// VectorSearch performs a brute-force cosine similarity scan.
// SQLite has no vector index; this is acceptable for development-scale
// corpora only. PostgreSQL with pgvector is the production path.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.MemoryWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	where := `1 = 1`
	args := []any{}
	if opts.Model != "" {
		where = `e.model = ?`
		args = append(args, opts.Model)
	}

	query := `
		SELECT
			m.id, m.uid, m.created_ts, m.updated_ts, m.title, m.content, m.summary,
			m.attributes, m.content_hash, m.word_count, m.search_text, m.version,
			e.embedding
		FROM memory m
		JOIN memory_embedding e ON m.id = e.memory_id
		WHERE ` + where
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search")
	}
	defer rows.Close()

	results := []*store.MemoryWithScore{}
	for rows.Next() {
		var embeddingJSON string
		var result store.MemoryWithScore
		memory := &store.Memory{}
		var attributes string
		if err := rows.Scan(
			&memory.ID,
			&memory.UID,
			&memory.CreatedTs,
			&memory.UpdatedTs,
			&memory.Title,
			&memory.Content,
			&memory.Summary,
			&attributes,
			&memory.ContentHash,
			&memory.WordCount,
			&memory.SearchText,
			&memory.Version,
			&embeddingJSON,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search row")
		}
		if err := json.Unmarshal([]byte(attributes), &memory.Attributes); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal attributes")
		}

		var embedding []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal embedding")
		}

		result.Memory = memory
		result.Score = cosineSimilarity(opts.Vector, embedding)
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (d *DB) FindMemoriesWithoutEmbedding(ctx context.Context, find *store.FindMemoriesWithoutEmbedding) ([]*store.Memory, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			m.id, m.uid, m.created_ts, m.updated_ts, m.title, m.content, m.summary,
			m.attributes, m.content_hash, m.word_count, m.search_text, m.version
		FROM memory m
		LEFT JOIN memory_embedding e ON m.id = e.memory_id AND e.model = ?
		WHERE e.id IS NULL AND LENGTH(m.content) > 0
		ORDER BY m.created_ts DESC
		LIMIT ?
	`
	rows, err := d.db.QueryContext(ctx, query, find.Model, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find memories without embedding")
	}
	defer rows.Close()

	list := []*store.Memory{}
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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
