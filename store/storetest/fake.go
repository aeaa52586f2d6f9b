// Package storetest provides an in-memory store driver for tests.
package storetest

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/infoagent/infoagent/store"
)

// FakeDriver is an in-memory implementation of store.Driver. Full-text
// search is approximated by substring matching; vector search by cosine
// similarity over stored embeddings.
type FakeDriver struct {
	mu         sync.Mutex
	nextID     int32
	memories   map[int32]*store.Memory
	embeddings map[int32]*store.MemoryEmbedding

	// Err, when set, is returned by every data method.
	Err error
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		nextID:     1,
		memories:   make(map[int32]*store.Memory),
		embeddings: make(map[int32]*store.MemoryEmbedding),
	}
}

func (d *FakeDriver) GetDB() *sql.DB { return nil }

func (d *FakeDriver) Close() error { return nil }

func (d *FakeDriver) IsInitialized(_ context.Context) (bool, error) { return true, nil }

func (d *FakeDriver) CreateMemory(_ context.Context, create *store.Memory) (*store.Memory, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	memory := *create
	memory.ID = d.nextID
	d.nextID++
	if memory.CreatedTs == 0 {
		memory.CreatedTs = time.Now().Unix()
	}
	if memory.UpdatedTs == 0 {
		memory.UpdatedTs = memory.CreatedTs
	}
	d.memories[memory.ID] = &memory
	return &memory, nil
}

func (d *FakeDriver) ListMemories(_ context.Context, find *store.FindMemory) ([]*store.Memory, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	list := make([]*store.Memory, 0, len(d.memories))
	for _, memory := range d.memories {
		if find.ID != nil && memory.ID != *find.ID {
			continue
		}
		if find.UID != nil && memory.UID != *find.UID {
			continue
		}
		if find.ContentHash != nil && memory.ContentHash != *find.ContentHash {
			continue
		}
		list = append(list, memory)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs > list[j].CreatedTs
		}
		return list[i].ID > list[j].ID
	})
	if find.Offset != nil && *find.Offset < len(list) {
		list = list[*find.Offset:]
	} else if find.Offset != nil {
		list = nil
	}
	if find.Limit != nil && *find.Limit < len(list) {
		list = list[:*find.Limit]
	}
	return list, nil
}

func (d *FakeDriver) UpdateMemory(_ context.Context, update *store.UpdateMemory) error {
	if d.Err != nil {
		return d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	memory, ok := d.memories[update.ID]
	if !ok {
		return nil
	}
	if update.UpdatedTs != nil {
		memory.UpdatedTs = *update.UpdatedTs
	}
	if update.Title != nil {
		memory.Title = *update.Title
	}
	if update.Content != nil {
		memory.Content = *update.Content
	}
	if update.Summary != nil {
		memory.Summary = *update.Summary
	}
	if update.Attributes != nil {
		memory.Attributes = *update.Attributes
	}
	if update.ContentHash != nil {
		memory.ContentHash = *update.ContentHash
	}
	if update.WordCount != nil {
		memory.WordCount = *update.WordCount
	}
	if update.SearchText != nil {
		memory.SearchText = *update.SearchText
	}
	if update.Version != nil {
		memory.Version = *update.Version
	}
	return nil
}

func (d *FakeDriver) DeleteMemory(_ context.Context, del *store.DeleteMemory) error {
	if d.Err != nil {
		return d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.memories, del.ID)
	return nil
}

func (d *FakeDriver) CountMemories(_ context.Context) (int64, error) {
	if d.Err != nil {
		return 0, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.memories)), nil
}

func (d *FakeDriver) GetStats(_ context.Context) (*store.Stats, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := &store.Stats{
		TotalMemories:   int64(len(d.memories)),
		TotalEmbeddings: int64(len(d.embeddings)),
	}
	weekAgo := time.Now().AddDate(0, 0, -7).Unix()
	monthAgo := time.Now().AddDate(0, -1, 0).Unix()
	for _, memory := range d.memories {
		if memory.CreatedTs >= weekAgo {
			stats.MemoriesWeek++
		}
		if memory.CreatedTs >= monthAgo {
			stats.MemoriesMonth++
		}
	}
	return stats, nil
}

func (d *FakeDriver) FullTextSearch(_ context.Context, opts *store.FullTextSearchOptions) ([]*store.MemoryWithScore, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	query := strings.ToLower(opts.Query)
	matches := make([]*store.MemoryWithScore, 0)
	for _, memory := range d.memories {
		text := strings.ToLower(memory.SearchText)
		if text == "" {
			text = strings.ToLower(memory.Content)
		}
		count := strings.Count(text, query)
		if count == 0 {
			continue
		}
		matches = append(matches, &store.MemoryWithScore{
			Memory: memory,
			Score:  float64(count),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Memory.ID < matches[j].Memory.ID
	})
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

func (d *FakeDriver) VectorSearch(_ context.Context, opts *store.VectorSearchOptions) ([]*store.MemoryWithScore, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	matches := make([]*store.MemoryWithScore, 0)
	for memoryID, embedding := range d.embeddings {
		memory, ok := d.memories[memoryID]
		if !ok {
			continue
		}
		matches = append(matches, &store.MemoryWithScore{
			Memory: memory,
			Score:  cosine(opts.Vector, embedding.Embedding),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Memory.ID < matches[j].Memory.ID
	})
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

func (d *FakeDriver) UpsertMemoryEmbedding(_ context.Context, upsert *store.MemoryEmbedding) (*store.MemoryEmbedding, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	embedding := *upsert
	d.embeddings[upsert.MemoryID] = &embedding
	return &embedding, nil
}

func (d *FakeDriver) DeleteMemoryEmbedding(_ context.Context, memoryID int32) error {
	if d.Err != nil {
		return d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.embeddings, memoryID)
	return nil
}

func (d *FakeDriver) FindMemoriesWithoutEmbedding(_ context.Context, find *store.FindMemoriesWithoutEmbedding) ([]*store.Memory, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	missing := make([]*store.Memory, 0)
	for _, memory := range d.memories {
		if _, ok := d.embeddings[memory.ID]; !ok {
			missing = append(missing, memory)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].ID < missing[j].ID })
	if find.Limit > 0 && len(missing) > find.Limit {
		missing = missing[:find.Limit]
	}
	return missing, nil
}

// Embedding returns the stored embedding for a memory, if any.
func (d *FakeDriver) Embedding(memoryID int32) *store.MemoryEmbedding {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.embeddings[memoryID]
}

func cosine(a, b []float32) float64 {
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
