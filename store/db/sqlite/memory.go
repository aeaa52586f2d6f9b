package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/store"
)

func (d *DB) CreateMemory(ctx context.Context, create *store.Memory) (*store.Memory, error) {
	if create.UID == "" {
		create.UID = uuid.NewString()
	}
	if create.Attributes == nil {
		create.Attributes = store.Attributes{}
	}
	attributes, err := json.Marshal(create.Attributes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal attributes")
	}

	now := time.Now().Unix()
	stmt := `
		INSERT INTO memory (uid, created_ts, updated_ts, title, content, summary, attributes, content_hash, word_count, search_text, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		now,
		now,
		create.Title,
		create.Content,
		create.Summary,
		string(attributes),
		create.ContentHash,
		create.WordCount,
		create.SearchText,
		1,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create memory")
	}

	create.CreatedTs = now
	create.UpdatedTs = now
	create.Version = 1
	return create, nil
}

func (d *DB) ListMemories(ctx context.Context, find *store.FindMemory) ([]*store.Memory, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.ContentHash != nil {
		where, args = append(where, "content_hash = ?"), append(args, *find.ContentHash)
	}

	query := `
		SELECT id, uid, created_ts, updated_ts, title, content, summary, attributes, content_hash, word_count, search_text, version
		FROM memory
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC
	`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
		if find.Offset != nil {
			query += " OFFSET ?"
			args = append(args, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memories")
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

func (d *DB) UpdateMemory(ctx context.Context, update *store.UpdateMemory) error {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = ?"), append(args, *update.Title)
	}
	if update.Content != nil {
		set, args = append(set, "content = ?"), append(args, *update.Content)
	}
	if update.Summary != nil {
		set, args = append(set, "summary = ?"), append(args, *update.Summary)
	}
	if update.Attributes != nil {
		attributes, err := json.Marshal(*update.Attributes)
		if err != nil {
			return errors.Wrap(err, "failed to marshal attributes")
		}
		set, args = append(set, "attributes = ?"), append(args, string(attributes))
	}
	if update.ContentHash != nil {
		set, args = append(set, "content_hash = ?"), append(args, *update.ContentHash)
	}
	if update.WordCount != nil {
		set, args = append(set, "word_count = ?"), append(args, *update.WordCount)
	}
	if update.SearchText != nil {
		set, args = append(set, "search_text = ?"), append(args, *update.SearchText)
	}
	if update.Version != nil {
		set, args = append(set, "version = ?"), append(args, *update.Version)
	}
	updatedTs := time.Now().Unix()
	if update.UpdatedTs != nil {
		updatedTs = *update.UpdatedTs
	}
	set, args = append(set, "updated_ts = ?"), append(args, updatedTs)

	args = append(args, update.ID)
	stmt := `UPDATE memory SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to update memory")
	}
	return nil
}

func (d *DB) DeleteMemory(ctx context.Context, delete *store.DeleteMemory) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM memory WHERE id = ?`, delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete memory")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Errorf("memory %d not found", delete.ID)
	}
	return nil
}

func (d *DB) CountMemories(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count memories")
	}
	return count, nil
}

func (d *DB) GetStats(ctx context.Context) (*store.Stats, error) {
	stats := &store.Stats{}
	now := time.Now()
	weekAgo := now.AddDate(0, 0, -7).Unix()
	monthAgo := now.AddDate(0, -1, 0).Unix()

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE created_ts >= ?),
			COUNT(*) FILTER (WHERE created_ts >= ?)
		FROM memory
	`
	if err := d.db.QueryRowContext(ctx, query, weekAgo, monthAgo).Scan(
		&stats.TotalMemories,
		&stats.MemoriesWeek,
		&stats.MemoriesMonth,
	); err != nil {
		return nil, errors.Wrap(err, "failed to get memory stats")
	}

	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_embedding`).Scan(&stats.TotalEmbeddings); err != nil {
		return nil, errors.Wrap(err, "failed to count embeddings")
	}
	return stats, nil
}

// FullTextSearch performs lexical search using SQLite FTS5.
// bm25() returns lower-is-better values, so the score is negated to keep
// the best-first, higher-is-better contract of the Driver interface.
func (d *DB) FullTextSearch(ctx context.Context, opts *store.FullTextSearchOptions) ([]*store.MemoryWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			m.id, m.uid, m.created_ts, m.updated_ts, m.title, m.content, m.summary,
			m.attributes, m.content_hash, m.word_count, m.search_text, m.version,
			-bm25(memory_fts) AS score
		FROM memory_fts
		JOIN memory m ON m.id = memory_fts.rowid
		WHERE memory_fts MATCH ?
		ORDER BY bm25(memory_fts)
		LIMIT ?
	`
	rows, err := d.db.QueryContext(ctx, query, ftsQuery(opts.Query), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to full-text search")
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

// ftsQuery quotes each term so user input cannot break FTS5 query syntax.
func ftsQuery(input string) string {
	terms := strings.Fields(input)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*store.Memory, error) {
	var memory store.Memory
	var attributes string
	if err := row.Scan(
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
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to scan memory")
	}
	if err := json.Unmarshal([]byte(attributes), &memory.Attributes); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal attributes")
	}
	return &memory, nil
}

func scanMemoryWithScore(row rowScanner, score *float64) (*store.Memory, error) {
	var memory store.Memory
	var attributes string
	if err := row.Scan(
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
		score,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan memory")
	}
	if err := json.Unmarshal([]byte(attributes), &memory.Attributes); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal attributes")
	}
	return &memory, nil
}
