package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// AttributeKind identifies the type of a dynamic attribute value.
type AttributeKind int

const (
	AttributeString AttributeKind = iota
	AttributeNumber
	AttributeBool
	AttributeStringList
)

// AttributeValue is a typed value for an AI-extracted dynamic attribute.
// Memories carry arbitrary extra fields (category, people, places, ...)
// without falling back to untyped maps.
type AttributeValue struct {
	Kind AttributeKind
	Str  string
	Num  float64
	Bool bool
	List []string
}

// StringValue creates a string attribute.
func StringValue(s string) AttributeValue {
	return AttributeValue{Kind: AttributeString, Str: s}
}

// NumberValue creates a numeric attribute.
func NumberValue(n float64) AttributeValue {
	return AttributeValue{Kind: AttributeNumber, Num: n}
}

// BoolValue creates a boolean attribute.
func BoolValue(b bool) AttributeValue {
	return AttributeValue{Kind: AttributeBool, Bool: b}
}

// ListValue creates a string-list attribute.
func ListValue(items ...string) AttributeValue {
	return AttributeValue{Kind: AttributeStringList, List: items}
}

// Interface returns the underlying value as a plain Go value.
func (v AttributeValue) Interface() any {
	switch v.Kind {
	case AttributeNumber:
		return v.Num
	case AttributeBool:
		return v.Bool
	case AttributeStringList:
		return v.List
	default:
		return v.Str
	}
}

// MarshalJSON renders the attribute as its plain value.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes a plain JSON value into a typed attribute.
func (v *AttributeValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, ok := AttributeFromAny(raw)
	if !ok {
		return errors.Errorf("unsupported attribute value: %s", string(data))
	}
	*v = parsed
	return nil
}

// AttributeFromAny converts a decoded JSON value into a typed attribute.
// Unsupported shapes (nested objects, mixed lists) are rejected.
func AttributeFromAny(raw any) (AttributeValue, bool) {
	switch val := raw.(type) {
	case string:
		return StringValue(val), true
	case float64:
		return NumberValue(val), true
	case bool:
		return BoolValue(val), true
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return AttributeValue{}, false
			}
			items = append(items, s)
		}
		return ListValue(items...), true
	default:
		return AttributeValue{}, false
	}
}

// Attributes is the dynamic attribute map attached to a memory.
type Attributes map[string]AttributeValue

// GetString returns the named string attribute, or "" when absent.
func (a Attributes) GetString(key string) string {
	if v, ok := a[key]; ok && v.Kind == AttributeString {
		return v.Str
	}
	return ""
}

// GetList returns the named string-list attribute, or nil when absent.
// A plain string attribute is treated as a single-element list.
func (a Attributes) GetList(key string) []string {
	v, ok := a[key]
	if !ok {
		return nil
	}
	switch v.Kind {
	case AttributeStringList:
		return v.List
	case AttributeString:
		return []string{v.Str}
	default:
		return nil
	}
}

// Memory is a single stored memory record.
type Memory struct {
	ID  int32
	UID string

	// Standard fields
	CreatedTs int64
	UpdatedTs int64

	// Content fields
	Title   string
	Content string
	Summary string

	// AI-extracted dynamic attributes
	Attributes Attributes

	// Derived fields
	ContentHash string
	WordCount   int
	SearchText  string

	Version int32
}

// HashContent returns the sha256 hex digest used for duplicate detection.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// CountWords returns the whitespace-separated word count of content.
func CountWords(content string) int {
	return len(strings.Fields(content))
}

// FindMemory is the filter for listing memories.
type FindMemory struct {
	ID          *int32
	UID         *string
	ContentHash *string

	Limit  *int
	Offset *int
}

// UpdateMemory carries the mutable fields of a memory update.
type UpdateMemory struct {
	ID int32

	UpdatedTs  *int64
	Title      *string
	Content    *string
	Summary    *string
	Attributes *Attributes

	ContentHash *string
	WordCount   *int
	SearchText  *string
	Version     *int32
}

// DeleteMemory identifies a memory to delete.
type DeleteMemory struct {
	ID int32
}

// MemoryWithScore pairs a memory with a source-native relevance score.
// The score scale is provider-defined and not comparable across sources.
type MemoryWithScore struct {
	Memory *Memory
	Score  float64
}

// FullTextSearchOptions configures the structured (lexical) search.
type FullTextSearchOptions struct {
	Query string
	Limit int
}

// VectorSearchOptions configures the semantic (embedding) search.
type VectorSearchOptions struct {
	Vector []float32
	Limit  int
	Model  string
}

// MemoryEmbedding is a stored embedding vector for a memory.
type MemoryEmbedding struct {
	ID        int32
	MemoryID  int32
	Embedding []float32
	Model     string
	CreatedTs int64
	UpdatedTs int64
}

// FindMemoriesWithoutEmbedding filters memories lacking a vector for a model.
type FindMemoriesWithoutEmbedding struct {
	Model string
	Limit int
}

// Stats summarizes the contents of the store.
type Stats struct {
	TotalMemories   int64
	MemoriesWeek    int64
	MemoriesMonth   int64
	TotalEmbeddings int64
}

func (s *Store) CreateMemory(ctx context.Context, create *Memory) (*Memory, error) {
	if create.Content != "" && create.ContentHash == "" {
		create.ContentHash = HashContent(create.Content)
	}
	if create.WordCount == 0 {
		create.WordCount = CountWords(create.Content)
	}
	memory, err := s.driver.CreateMemory(ctx, create)
	if err != nil {
		return nil, err
	}
	s.memoryCache.Set(memory.ID, memory)
	return memory, nil
}

func (s *Store) ListMemories(ctx context.Context, find *FindMemory) ([]*Memory, error) {
	return s.driver.ListMemories(ctx, find)
}

func (s *Store) GetMemory(ctx context.Context, find *FindMemory) (*Memory, error) {
	if find.ID != nil && find.UID == nil && find.ContentHash == nil {
		if memory, ok := s.memoryCache.Get(*find.ID); ok {
			return memory, nil
		}
	}

	list, err := s.driver.ListMemories(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}

	memory := list[0]
	s.memoryCache.Set(memory.ID, memory)
	return memory, nil
}

func (s *Store) UpdateMemory(ctx context.Context, update *UpdateMemory) error {
	if err := s.driver.UpdateMemory(ctx, update); err != nil {
		return err
	}
	s.memoryCache.Delete(update.ID)
	return nil
}

func (s *Store) DeleteMemory(ctx context.Context, delete *DeleteMemory) error {
	if err := s.driver.DeleteMemory(ctx, delete); err != nil {
		return err
	}
	s.memoryCache.Delete(delete.ID)
	// The embedding row, if any, goes with the memory.
	if err := s.driver.DeleteMemoryEmbedding(ctx, delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete memory embedding")
	}
	return nil
}

func (s *Store) CountMemories(ctx context.Context) (int64, error) {
	return s.driver.CountMemories(ctx)
}

func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	return s.driver.GetStats(ctx)
}

func (s *Store) FullTextSearch(ctx context.Context, opts *FullTextSearchOptions) ([]*MemoryWithScore, error) {
	return s.driver.FullTextSearch(ctx, opts)
}

func (s *Store) VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*MemoryWithScore, error) {
	return s.driver.VectorSearch(ctx, opts)
}

func (s *Store) UpsertMemoryEmbedding(ctx context.Context, upsert *MemoryEmbedding) (*MemoryEmbedding, error) {
	return s.driver.UpsertMemoryEmbedding(ctx, upsert)
}

func (s *Store) DeleteMemoryEmbedding(ctx context.Context, memoryID int32) error {
	return s.driver.DeleteMemoryEmbedding(ctx, memoryID)
}

func (s *Store) FindMemoriesWithoutEmbedding(ctx context.Context, find *FindMemoriesWithoutEmbedding) ([]*Memory, error) {
	return s.driver.FindMemoriesWithoutEmbedding(ctx, find)
}
