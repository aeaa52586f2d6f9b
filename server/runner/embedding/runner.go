// Package embedding backfills vectors for memories that were stored while
// the embedding service was unavailable or disabled.
package embedding

import (
	"context"
	"log/slog"
	"time"

	"github.com/infoagent/infoagent/plugin/ai"
	"github.com/infoagent/infoagent/store"
)

const (
	defaultInterval  = 2 * time.Minute
	defaultBatchSize = 8
)

type Runner struct {
	store            *store.Store
	embeddingService ai.EmbeddingService
	logger           *slog.Logger
	interval         time.Duration
	batchSize        int
}

// NewRunner creates the embedding backfill runner.
func NewRunner(st *store.Store, embeddingService ai.EmbeddingService, logger *slog.Logger) *Runner {
	return &Runner{
		store:            st,
		embeddingService: embeddingService,
		logger:           logger,
		interval:         defaultInterval,
		batchSize:        defaultBatchSize,
	}
}

// Run processes pending memories once at startup, then on every tick until
// the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.processPending(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.processPending(ctx)
		case <-ctx.Done():
			r.logger.Info("embedding runner stopped")
			return
		}
	}
}

// RunOnce processes pending memories a single time.
func (r *Runner) RunOnce(ctx context.Context) {
	r.processPending(ctx)
}

func (r *Runner) processPending(ctx context.Context) {
	memories, err := r.store.FindMemoriesWithoutEmbedding(ctx, &store.FindMemoriesWithoutEmbedding{
		Model: r.embeddingService.Model(),
		// Fetch ahead, embed in small batches.
		Limit: r.batchSize * 20,
	})
	if err != nil {
		r.logger.Error("failed to find memories without embedding", "error", err)
		return
	}
	if len(memories) == 0 {
		return
	}

	r.logger.Info("backfilling embeddings", "count", len(memories))

	for i := 0; i < len(memories); i += r.batchSize {
		select {
		case <-ctx.Done():
			r.logger.Info("embedding backfill cancelled", "processed", i, "total", len(memories))
			return
		default:
		}

		end := i + r.batchSize
		if end > len(memories) {
			end = len(memories)
		}
		if err := r.processBatch(ctx, memories[i:end]); err != nil {
			r.logger.Error("failed to process embedding batch", "error", err)
			continue
		}
		r.logger.Debug("embedding batch processed", "done", end, "total", len(memories))
	}
}

func (r *Runner) processBatch(ctx context.Context, memories []*store.Memory) error {
	texts := make([]string, len(memories))
	for i, memory := range memories {
		texts[i] = embeddingText(memory)
	}

	vectors, err := r.embeddingService.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	for i, memory := range memories {
		_, err := r.store.UpsertMemoryEmbedding(ctx, &store.MemoryEmbedding{
			MemoryID:  memory.ID,
			Embedding: vectors[i],
			Model:     r.embeddingService.Model(),
		})
		if err != nil {
			r.logger.Error("failed to upsert embedding", "memory_id", memory.ID, "error", err)
		}
	}
	return nil
}

// embeddingText prefers the prepared search text and falls back to raw
// content for memories stored before search text existed.
func embeddingText(memory *store.Memory) string {
	if memory.SearchText != "" {
		return memory.SearchText
	}
	return memory.Content
}
