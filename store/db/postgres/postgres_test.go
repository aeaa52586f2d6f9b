package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements(1536)
	joined := strings.Join(stmts, ";\n")

	// The extension must be installed before any vector column exists.
	require.Contains(t, stmts[0], "CREATE EXTENSION IF NOT EXISTS vector")
	require.Contains(t, joined, "CREATE TABLE IF NOT EXISTS memory ")
	require.Contains(t, joined, "CREATE TABLE IF NOT EXISTS memory_embedding ")
	require.Contains(t, joined, "embedding vector(1536) NOT NULL")
	require.Contains(t, joined, "idx_memory_content_hash")
	require.Contains(t, joined, "to_tsvector('simple', COALESCE(search_text, ''))")
}

func TestSchemaStatementsDimensions(t *testing.T) {
	require.Contains(t, strings.Join(schemaStatements(768), "\n"), "vector(768)")

	// Unset dimensions fall back to the default embedding size.
	require.Contains(t, strings.Join(schemaStatements(0), "\n"), "vector(1536)")
}
