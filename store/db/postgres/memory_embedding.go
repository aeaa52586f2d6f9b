package postgres

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/store"
)

func (d *DB) UpsertMemoryEmbedding(ctx context.Context, upsert *store.MemoryEmbedding) (*store.MemoryEmbedding, error) {
	now := time.Now().Unix()
	stmt := `
		INSERT INTO memory_embedding (memory_id, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (memory_id, model)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`
	vector := pgvector.NewVector(upsert.Embedding)
	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.MemoryID,
		vector,
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
	if _, err := d.db.ExecContext(ctx, `DELETE FROM memory_embedding WHERE memory_id = `+placeholder(1), memoryID); err != nil {
		return errors.Wrap(err, "failed to delete memory embedding")
	}
	return nil
}

// VectorSearch performs vector similarity search using pgvector.
// The <=> operator computes cosine distance (1 - cosine_similarity),
// so ordering by distance ascending yields most similar first.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.MemoryWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT
			m.id, m.uid, m.created_ts, m.updated_ts, m.title, m.content, m.summary,
			m.attributes, m.content_hash, m.word_count, m.search_text, m.version,
			1 - (e.embedding <=> ` + placeholder(1) + `) AS score
		FROM memory m
		INNER JOIN memory_embedding e ON m.id = e.memory_id
		WHERE e.model = ` + placeholder(2) + `
		ORDER BY e.embedding <=> ` + placeholder(3) + `
		LIMIT ` + placeholder(4)

	vector := pgvector.NewVector(opts.Vector)
	rows, err := d.db.QueryContext(ctx, query, vector, opts.Model, vector, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search")
	}
	defer rows.Close()

	results := []*store.MemoryWithScore{}
	for rows.Next() {
		var result store.MemoryWithScore
		memory, err := scanMemoryWithScore(rows, &result.Score)
		if err != nil {
			return nil, err
		}
		result.Memory = memory
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
		LEFT JOIN memory_embedding e ON m.id = e.memory_id AND e.model = ` + placeholder(1) + `
		WHERE e.id IS NULL AND LENGTH(m.content) > 0
		ORDER BY m.created_ts DESC
		LIMIT ` + placeholder(2)

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
