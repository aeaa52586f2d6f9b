package retrieval

import (
	"context"

	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/plugin/ai"
	"github.com/infoagent/infoagent/server/ranking"
	"github.com/infoagent/infoagent/store"
)

// maxCandidateLimit caps how many candidates a provider may hand to fusion.
const maxCandidateLimit = 100

// Provider is a single retrieval source feeding candidates into fusion.
type Provider interface {
	// Name identifies the source in fusion weights and logs.
	Name() string
	// Search returns ranked candidates for the query, best first.
	Search(ctx context.Context, query string, limit int) ([]*ranking.CandidateResult, error)
}

// candidateLimit over-fetches relative to the requested result count so the
// fusion stage has enough overlap to work with.
func candidateLimit(limit int) int {
	n := limit * 2
	if n > maxCandidateLimit {
		n = maxCandidateLimit
	}
	return n
}

// StructuredProvider performs lexical full-text search against the store.
type StructuredProvider struct {
	store *store.Store
}

func NewStructuredProvider(st *store.Store) *StructuredProvider {
	return &StructuredProvider{store: st}
}

func (p *StructuredProvider) Name() string {
	return ranking.SourceStructured
}

func (p *StructuredProvider) Search(ctx context.Context, query string, limit int) ([]*ranking.CandidateResult, error) {
	matches, err := p.store.FullTextSearch(ctx, &store.FullTextSearchOptions{
		Query: query,
		Limit: candidateLimit(limit),
	})
	if err != nil {
		return nil, errors.Wrap(err, "full text search")
	}
	return toCandidates(matches, ranking.SourceStructured), nil
}

// SemanticProvider embeds the query and performs vector search.
type SemanticProvider struct {
	store     *store.Store
	embedding ai.EmbeddingService
}

func NewSemanticProvider(st *store.Store, embedding ai.EmbeddingService) *SemanticProvider {
	return &SemanticProvider{store: st, embedding: embedding}
}

func (p *SemanticProvider) Name() string {
	return ranking.SourceSemantic
}

func (p *SemanticProvider) Search(ctx context.Context, query string, limit int) ([]*ranking.CandidateResult, error) {
	vector, err := p.embedding.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}
	matches, err := p.store.VectorSearch(ctx, &store.VectorSearchOptions{
		Vector: vector,
		Limit:  candidateLimit(limit),
		Model:  p.embedding.Model(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "vector search")
	}
	return toCandidates(matches, ranking.SourceSemantic), nil
}

func toCandidates(matches []*store.MemoryWithScore, source string) []*ranking.CandidateResult {
	candidates := make([]*ranking.CandidateResult, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, &ranking.CandidateResult{
			RecordID: m.Memory.ID,
			Score:    m.Score,
			Source:   source,
			Record:   m.Memory,
		})
	}
	return candidates
}
