package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/infoagent/infoagent/server/ranking"
	"github.com/infoagent/infoagent/store"
)

type fakeProvider struct {
	name       string
	candidates []*ranking.CandidateResult
	err        error
	gotLimit   int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Search(_ context.Context, _ string, limit int) ([]*ranking.CandidateResult, error) {
	p.gotLimit = limit
	if p.err != nil {
		return nil, p.err
	}
	return p.candidates, nil
}

func candidate(id int32, score float64, source string) *ranking.CandidateResult {
	return &ranking.CandidateResult{
		RecordID: id,
		Score:    score,
		Source:   source,
		Record:   &store.Memory{ID: id, Content: strings.Repeat("x", int(id))},
	}
}

func newTestSearcher(providers ...Provider) *HybridSearcher {
	ranker := ranking.NewRanker(ranking.Config{})
	return NewHybridSearcher(providers, ranker, slog.Default())
}

func TestSearchFusedMode(t *testing.T) {
	structured := &fakeProvider{
		name: ranking.SourceStructured,
		candidates: []*ranking.CandidateResult{
			candidate(1, 0.9, ranking.SourceStructured),
			candidate(2, 0.8, ranking.SourceStructured),
		},
	}
	semantic := &fakeProvider{
		name: ranking.SourceSemantic,
		candidates: []*ranking.CandidateResult{
			candidate(2, 0.95, ranking.SourceSemantic),
			candidate(3, 0.7, ranking.SourceSemantic),
		},
	}
	searcher := newTestSearcher(structured, semantic)

	result, err := searcher.Search(context.Background(), &Options{Query: "roadmap", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, ModeFused, result.Mode)
	require.Empty(t, result.FailedSources)

	// Record 2 appears in both sources and must rank first.
	require.NotEmpty(t, result.Results)
	require.Equal(t, int32(2), result.Results[0].RecordID)
	require.Equal(t, []string{ranking.SourceSemantic, ranking.SourceStructured}, result.Results[0].ContributingSources)

	// Fused results carry the final ranking annotation.
	require.Contains(t, result.Results[0].Explanation, "RRF Score: ")
	require.Contains(t, result.Results[0].Explanation, "Confidence: ")
	require.Contains(t, result.Results[0].Explanation, "Sources: semantic, structured")
}

func TestSearchDegradedOnProviderFailure(t *testing.T) {
	structured := &fakeProvider{
		name: ranking.SourceStructured,
		candidates: []*ranking.CandidateResult{
			candidate(1, 0.9, ranking.SourceStructured),
		},
	}
	semantic := &fakeProvider{
		name: ranking.SourceSemantic,
		err:  errors.New("embedding service unavailable"),
	}
	searcher := newTestSearcher(structured, semantic)

	result, err := searcher.Search(context.Background(), &Options{Query: "roadmap"})
	require.NoError(t, err)
	require.Equal(t, ModeDegraded, result.Mode)
	require.Equal(t, []string{ranking.SourceSemantic}, result.FailedSources)
	require.Len(t, result.Results, 1)
	require.Equal(t, int32(1), result.Results[0].RecordID)
}

func TestSearchAllProvidersFail(t *testing.T) {
	structured := &fakeProvider{name: ranking.SourceStructured, err: errors.New("db down")}
	semantic := &fakeProvider{name: ranking.SourceSemantic, err: errors.New("api down")}
	searcher := newTestSearcher(structured, semantic)

	_, err := searcher.Search(context.Background(), &Options{Query: "roadmap"})
	require.Error(t, err)
}

func TestSearchEmptyQueryRejected(t *testing.T) {
	searcher := newTestSearcher(&fakeProvider{name: ranking.SourceStructured})

	_, err := searcher.Search(context.Background(), &Options{Query: ""})
	require.Error(t, err)
}

func TestSearchQueryLengthLimit(t *testing.T) {
	searcher := newTestSearcher(&fakeProvider{name: ranking.SourceStructured})

	_, err := searcher.Search(context.Background(), &Options{Query: strings.Repeat("q", maxQueryLength+1)})
	require.Error(t, err)
}

func TestSearchQueryLengthCountsRunes(t *testing.T) {
	structured := &fakeProvider{
		name:       ranking.SourceStructured,
		candidates: []*ranking.CandidateResult{candidate(1, 0.9, ranking.SourceStructured)},
	}
	searcher := newTestSearcher(structured)

	// 400 CJK runes exceed 1000 bytes but are well within the limit.
	query := strings.Repeat("记", 400)
	result, err := searcher.Search(context.Background(), &Options{Query: query})
	require.NoError(t, err)
	require.Equal(t, ModeFused, result.Mode)

	_, err = searcher.Search(context.Background(), &Options{Query: strings.Repeat("记", maxQueryLength+1)})
	require.Error(t, err)
}

func TestSearchFallbackWhenFusionPanics(t *testing.T) {
	structured := &fakeProvider{
		name:       ranking.SourceStructured,
		candidates: []*ranking.CandidateResult{candidate(1, 0.9, ranking.SourceStructured)},
	}
	// A nil ranker panics inside the fusion stage; the searcher must
	// recover and fall back to the plain union.
	searcher := NewHybridSearcher([]Provider{structured}, nil, slog.Default())

	result, err := searcher.Search(context.Background(), &Options{Query: "roadmap", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, ModeFallback, result.Mode)
	require.Len(t, result.Results, 1)
	require.Equal(t, int32(1), result.Results[0].RecordID)
}

func TestUnionFallbackOrdering(t *testing.T) {
	sourceResults := map[string][]*ranking.CandidateResult{
		ranking.SourceStructured: {
			candidate(1, 0.5, ranking.SourceStructured),
			candidate(2, 0.4, ranking.SourceStructured),
		},
		ranking.SourceSemantic: {
			candidate(2, 0.9, ranking.SourceSemantic),
			candidate(3, 0.3, ranking.SourceSemantic),
		},
	}

	merged := unionFallback(sourceResults, 10)
	require.Len(t, merged, 3)
	require.Equal(t, int32(2), merged[0].RecordID)
	require.Equal(t, 0.9, merged[0].FusedScore)
	require.Equal(t, []string{ranking.SourceSemantic, ranking.SourceStructured}, merged[0].ContributingSources)
	require.Equal(t, int32(1), merged[1].RecordID)
	require.Equal(t, int32(3), merged[2].RecordID)
}

func TestUnionFallbackTruncates(t *testing.T) {
	sourceResults := map[string][]*ranking.CandidateResult{
		ranking.SourceStructured: {
			candidate(1, 0.5, ranking.SourceStructured),
			candidate(2, 0.4, ranking.SourceStructured),
			candidate(3, 0.3, ranking.SourceStructured),
		},
	}

	merged := unionFallback(sourceResults, 2)
	require.Len(t, merged, 2)
}

func TestProviderOverfetch(t *testing.T) {
	structured := &fakeProvider{
		name:       ranking.SourceStructured,
		candidates: []*ranking.CandidateResult{candidate(1, 0.9, ranking.SourceStructured)},
	}
	searcher := newTestSearcher(structured)

	_, err := searcher.Search(context.Background(), &Options{Query: "roadmap", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 10, structured.gotLimit)

	require.Equal(t, 20, candidateLimit(10))
	require.Equal(t, maxCandidateLimit, candidateLimit(90))
}
