package memory

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infoagent/infoagent/plugin/ai"
	"github.com/infoagent/infoagent/plugin/filter"
	"github.com/infoagent/infoagent/server/ranking"
	"github.com/infoagent/infoagent/server/retrieval"
	"github.com/infoagent/infoagent/store"
)

type staticProvider struct {
	name       string
	candidates []*ranking.CandidateResult
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Search(_ context.Context, _ string, _ int) ([]*ranking.CandidateResult, error) {
	return p.candidates, nil
}

func searchCandidate(id int32, score float64, source string, attrs store.Attributes) *ranking.CandidateResult {
	return &ranking.CandidateResult{
		RecordID: id,
		Score:    score,
		Source:   source,
		Record: &store.Memory{
			ID:         id,
			Content:    "memory content",
			Attributes: attrs,
		},
	}
}

func newTestSearchService(t *testing.T, analyzerResponse string, providers ...retrieval.Provider) *SearchService {
	t.Helper()
	engine, err := filter.NewEngine()
	require.NoError(t, err)

	searcher := retrieval.NewHybridSearcher(providers, ranking.NewRanker(ranking.Config{}), slog.Default())

	var analyzer *ai.QueryAnalyzer
	if analyzerResponse != "" {
		analyzer = ai.NewQueryAnalyzer(&stubLLM{response: analyzerResponse}, slog.Default())
	}
	return NewSearchService(searcher, analyzer, engine, slog.Default())
}

func TestSearchAppliesCELFilter(t *testing.T) {
	provider := &staticProvider{
		name: ranking.SourceStructured,
		candidates: []*ranking.CandidateResult{
			searchCandidate(1, 0.9, ranking.SourceStructured, store.Attributes{
				"category": store.StringValue("work"),
			}),
			searchCandidate(2, 0.8, ranking.SourceStructured, store.Attributes{
				"category": store.StringValue("personal"),
			}),
		},
	}
	svc := newTestSearchService(t, "", provider)

	resp, err := svc.Search(context.Background(), &SearchOptions{
		Query:  "notes",
		Filter: `category == "work"`,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, int32(1), resp.Results[0].RecordID)
	require.NotEmpty(t, resp.RequestID)
}

func TestSearchInvalidFilterFails(t *testing.T) {
	svc := newTestSearchService(t, "", &staticProvider{name: ranking.SourceStructured})

	_, err := svc.Search(context.Background(), &SearchOptions{
		Query:  "notes",
		Filter: `category ==`,
	})
	require.Error(t, err)
}

func TestSearchAnalysisNarrowsResults(t *testing.T) {
	provider := &staticProvider{
		name: ranking.SourceStructured,
		candidates: []*ranking.CandidateResult{
			searchCandidate(1, 0.9, ranking.SourceStructured, store.Attributes{
				"people": store.ListValue("Alice"),
			}),
			searchCandidate(2, 0.8, ranking.SourceStructured, store.Attributes{
				"people": store.ListValue("Bob"),
			}),
		},
	}
	analysisResponse := `{"people": ["alice"], "search_intent": "notes about Alice"}`
	svc := newTestSearchService(t, analysisResponse, provider)

	resp, err := svc.Search(context.Background(), &SearchOptions{Query: "notes about Alice"})
	require.NoError(t, err)
	require.NotNil(t, resp.Analysis)
	require.Len(t, resp.Results, 1)
	require.Equal(t, int32(1), resp.Results[0].RecordID)
}

func TestSearchAnalysisNeverEmptiesResults(t *testing.T) {
	provider := &staticProvider{
		name: ranking.SourceStructured,
		candidates: []*ranking.CandidateResult{
			searchCandidate(1, 0.9, ranking.SourceStructured, store.Attributes{
				"people": store.ListValue("Bob"),
			}),
		},
	}
	// The analyzer hallucinates a person that matches nothing.
	analysisResponse := `{"people": ["Zelda"], "search_intent": "notes"}`
	svc := newTestSearchService(t, analysisResponse, provider)

	resp, err := svc.Search(context.Background(), &SearchOptions{Query: "notes"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
}

func TestSearchAnalyzerFailureFallsBack(t *testing.T) {
	provider := &staticProvider{
		name: ranking.SourceStructured,
		candidates: []*ranking.CandidateResult{
			searchCandidate(1, 0.9, ranking.SourceStructured, nil),
		},
	}
	// Unparseable analyzer output must not fail the search.
	svc := newTestSearchService(t, "not json", provider)

	resp, err := svc.Search(context.Background(), &SearchOptions{Query: "notes"})
	require.NoError(t, err)
	require.Nil(t, resp.Analysis)
	require.Len(t, resp.Results, 1)
}

func TestMatchesAnalysisFieldFilters(t *testing.T) {
	result := &ranking.FusedResult{
		RecordID: 1,
		Record: &store.Memory{
			Attributes: store.Attributes{
				"priority": store.StringValue("high"),
			},
		},
	}

	match := &ai.QueryAnalysis{FieldFilters: map[string]string{"priority": "high"}}
	require.True(t, matchesAnalysis(match, result))

	mismatch := &ai.QueryAnalysis{FieldFilters: map[string]string{"priority": "low"}}
	require.False(t, matchesAnalysis(mismatch, result))

	// A filter on an attribute the memory lacks does not exclude it.
	absent := &ai.QueryAnalysis{FieldFilters: map[string]string{"status": "active"}}
	require.True(t, matchesAnalysis(absent, result))
}
