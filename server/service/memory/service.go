// Package memory implements the application service for creating,
// updating, and searching memories. It glues AI extraction, the store,
// and the retrieval pipeline together.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/plugin/ai"
	"github.com/infoagent/infoagent/store"
)

// ErrDuplicateContent is returned by CreateMemory when the exact same
// content is already stored. The existing memory is returned alongside.
var ErrDuplicateContent = errors.New("duplicate content")

const fallbackTitleLength = 50

// Service is the memory application service.
type Service struct {
	store     *store.Store
	processor *ai.MemoryProcessor
	embedding ai.EmbeddingService
	logger    *slog.Logger
}

// NewService creates the memory service. processor and embedding may be
// nil when AI is disabled; creation then skips extraction and vectors.
func NewService(st *store.Store, processor *ai.MemoryProcessor, embedding ai.EmbeddingService, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		processor: processor,
		embedding: embedding,
		logger:    logger,
	}
}

// CreateRequest carries the inputs for creating a memory.
type CreateRequest struct {
	Content string
	// Title overrides the AI-generated title when set.
	Title string
}

// CreateMemory stores new content as a memory. Identical content is
// detected by hash and returned with ErrDuplicateContent instead of
// creating a second copy. AI extraction failures degrade to a plain
// memory with a heuristic title rather than failing the create.
func (s *Service) CreateMemory(ctx context.Context, req *CreateRequest) (*store.Memory, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, errors.New("content is required")
	}

	contentHash := store.HashContent(content)
	existing, err := s.store.GetMemory(ctx, &store.FindMemory{ContentHash: &contentHash})
	if err != nil {
		return nil, errors.Wrap(err, "check duplicate content")
	}
	if existing != nil {
		return existing, ErrDuplicateContent
	}

	title := req.Title
	summary := ""
	attrs := store.Attributes{}
	if s.processor != nil {
		extraction, err := s.processor.Process(ctx, content)
		if err != nil {
			s.logger.Warn("AI extraction failed, storing without metadata", "error", err)
		} else {
			if title == "" {
				title = extraction.Title
			}
			summary = extraction.Summary
			attrs = extraction.Attributes()
			attrs["ai_processed"] = store.BoolValue(true)
		}
	}
	if title == "" {
		title = fallbackTitle(content)
	}

	now := time.Now().Unix()
	searchText := buildSearchText(title, content, summary)
	memory, err := s.store.CreateMemory(ctx, &store.Memory{
		UID:         uuid.NewString(),
		CreatedTs:   now,
		UpdatedTs:   now,
		Title:       title,
		Content:     content,
		Summary:     summary,
		Attributes:  attrs,
		ContentHash: contentHash,
		SearchText:  searchText,
		Version:     1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create memory")
	}

	// Embedding failures are recoverable: the backfill runner retries
	// memories without vectors.
	if s.embedding != nil {
		if err := s.embedMemory(ctx, memory); err != nil {
			s.logger.Warn("embedding failed, leaving for backfill",
				"memory_id", memory.ID,
				"error", err,
			)
		}
	}

	s.logger.Info("memory created", "memory_id", memory.ID, "title", title, "words", memory.WordCount)
	return memory, nil
}

// GetMemory returns the memory with the given ID, or nil when absent.
func (s *Service) GetMemory(ctx context.Context, id int32) (*store.Memory, error) {
	return s.store.GetMemory(ctx, &store.FindMemory{ID: &id})
}

// ListMemories returns memories newest first.
func (s *Service) ListMemories(ctx context.Context, limit, offset int) ([]*store.Memory, error) {
	find := &store.FindMemory{}
	if limit > 0 {
		find.Limit = &limit
	}
	if offset > 0 {
		find.Offset = &offset
	}
	return s.store.ListMemories(ctx, find)
}

// UpdateRequest carries a partial memory update. Nil fields are untouched.
type UpdateRequest struct {
	ID      int32
	Title   *string
	Content *string
	Summary *string
}

// UpdateMemory applies a partial update. A content change recomputes the
// derived fields and replaces the embedding.
func (s *Service) UpdateMemory(ctx context.Context, req *UpdateRequest) (*store.Memory, error) {
	current, err := s.GetMemory(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.Errorf("memory %d not found", req.ID)
	}

	now := time.Now().Unix()
	version := current.Version + 1
	update := &store.UpdateMemory{
		ID:        req.ID,
		UpdatedTs: &now,
		Title:     req.Title,
		Summary:   req.Summary,
		Version:   &version,
	}

	title := current.Title
	if req.Title != nil {
		title = *req.Title
	}
	summary := current.Summary
	if req.Summary != nil {
		summary = *req.Summary
	}
	content := current.Content

	if req.Content != nil && *req.Content != current.Content {
		content = *req.Content
		contentHash := store.HashContent(content)
		wordCount := store.CountWords(content)
		update.Content = &content
		update.ContentHash = &contentHash
		update.WordCount = &wordCount
	}

	searchText := buildSearchText(title, content, summary)
	update.SearchText = &searchText

	if err := s.store.UpdateMemory(ctx, update); err != nil {
		return nil, errors.Wrap(err, "update memory")
	}

	updated, err := s.GetMemory(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if updated != nil && req.Content != nil && s.embedding != nil {
		if err := s.embedMemory(ctx, updated); err != nil {
			s.logger.Warn("re-embedding failed, leaving for backfill",
				"memory_id", req.ID,
				"error", err,
			)
		}
	}
	return updated, nil
}

// DeleteMemory removes a memory and its embedding.
func (s *Service) DeleteMemory(ctx context.Context, id int32) error {
	return s.store.DeleteMemory(ctx, &store.DeleteMemory{ID: id})
}

// Stats returns store-level counters.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	return s.store.GetStats(ctx)
}

func (s *Service) embedMemory(ctx context.Context, memory *store.Memory) error {
	vector, err := s.embedding.Embed(ctx, memory.SearchText)
	if err != nil {
		return errors.Wrap(err, "embed memory")
	}
	_, err = s.store.UpsertMemoryEmbedding(ctx, &store.MemoryEmbedding{
		MemoryID:  memory.ID,
		Embedding: vector,
		Model:     s.embedding.Model(),
	})
	return err
}

// buildSearchText combines title, flattened content, and summary into the
// text that feeds both the full-text index and the embedding.
func buildSearchText(title, content, summary string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{title, MarkdownToPlain(content), summary} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n")
}

// fallbackTitle derives a title from content when AI extraction is
// unavailable: the first sentence, or the first 50 characters.
func fallbackTitle(content string) string {
	plain := strings.TrimSpace(MarkdownToPlain(content))
	if idx := strings.IndexAny(plain, "\n"); idx > 0 {
		plain = plain[:idx]
	}
	if idx := strings.IndexAny(plain, ".!?"); idx > 0 && idx < fallbackTitleLength {
		return strings.TrimSpace(plain[:idx+1])
	}
	runes := []rune(plain)
	if len(runes) <= fallbackTitleLength {
		return plain
	}
	return string(runes[:fallbackTitleLength]) + "..."
}
