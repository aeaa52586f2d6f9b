package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that a store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Memory model related methods.
	CreateMemory(ctx context.Context, create *Memory) (*Memory, error)
	ListMemories(ctx context.Context, find *FindMemory) ([]*Memory, error)
	UpdateMemory(ctx context.Context, update *UpdateMemory) error
	DeleteMemory(ctx context.Context, delete *DeleteMemory) error
	CountMemories(ctx context.Context) (int64, error)
	GetStats(ctx context.Context) (*Stats, error)

	// FullTextSearch performs structured (lexical) search over memory
	// search text. Results are ordered best-first with a provider-native
	// relevance score.
	FullTextSearch(ctx context.Context, opts *FullTextSearchOptions) ([]*MemoryWithScore, error)

	// VectorSearch performs semantic search using vector similarity.
	// Results are ordered best-first with a cosine similarity score.
	VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*MemoryWithScore, error)

	// MemoryEmbedding model related methods.
	UpsertMemoryEmbedding(ctx context.Context, upsert *MemoryEmbedding) (*MemoryEmbedding, error)
	DeleteMemoryEmbedding(ctx context.Context, memoryID int32) error
	FindMemoriesWithoutEmbedding(ctx context.Context, find *FindMemoriesWithoutEmbedding) ([]*Memory, error)
}
