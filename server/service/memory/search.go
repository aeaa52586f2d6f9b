package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/plugin/ai"
	"github.com/infoagent/infoagent/plugin/filter"
	"github.com/infoagent/infoagent/server/ranking"
	"github.com/infoagent/infoagent/server/retrieval"
)

// SearchService orchestrates query analysis, hybrid retrieval, and
// post-ranking filters.
type SearchService struct {
	searcher     *retrieval.HybridSearcher
	analyzer     *ai.QueryAnalyzer
	filterEngine *filter.Engine
	logger       *slog.Logger
}

// NewSearchService creates the search orchestrator. analyzer may be nil
// when AI is disabled.
func NewSearchService(searcher *retrieval.HybridSearcher, analyzer *ai.QueryAnalyzer, filterEngine *filter.Engine, logger *slog.Logger) *SearchService {
	return &SearchService{
		searcher:     searcher,
		analyzer:     analyzer,
		filterEngine: filterEngine,
		logger:       logger,
	}
}

// SearchOptions configures one search call.
type SearchOptions struct {
	Query string
	Limit int

	// Filter is an optional CEL expression applied to ranked results.
	Filter string

	// Weights overrides per-source fusion weights.
	Weights map[string]float64
}

// SearchResponse is the ranked, filtered outcome of a search.
type SearchResponse struct {
	Results       []*ranking.FusedResult
	Mode          retrieval.Mode
	FailedSources []string
	RequestID     string

	// Analysis is the AI interpretation of the query, when available.
	Analysis *ai.QueryAnalysis
}

// Search runs the full pipeline. Query analysis is best effort: an
// analyzer failure falls back to plain retrieval. An invalid Filter
// expression is a caller error and fails the search.
func (s *SearchService) Search(ctx context.Context, opts *SearchOptions) (*SearchResponse, error) {
	requestID := shortuuid.New()

	var compiled *filter.Filter
	if opts.Filter != "" {
		var err error
		compiled, err = s.filterEngine.Compile(opts.Filter)
		if err != nil {
			return nil, errors.Wrap(err, "compile search filter")
		}
	}

	var analysis *ai.QueryAnalysis
	if s.analyzer != nil {
		var err error
		analysis, err = s.analyzer.Analyze(ctx, opts.Query)
		if err != nil {
			s.logger.Debug("query analysis failed, searching without it",
				"request_id", requestID,
				"error", err,
			)
			analysis = nil
		}
	}

	result, err := s.searcher.Search(ctx, &retrieval.Options{
		Query:     opts.Query,
		Limit:     opts.Limit,
		Weights:   opts.Weights,
		RequestID: requestID,
	})
	if err != nil {
		return nil, err
	}

	results := result.Results
	if compiled != nil {
		results, err = s.applyFilter(compiled, results)
		if err != nil {
			return nil, err
		}
	}
	if analysis != nil && analysis.HasFilters() {
		results = applyAnalysisFilters(analysis, results)
	}

	return &SearchResponse{
		Results:       results,
		Mode:          result.Mode,
		FailedSources: result.FailedSources,
		RequestID:     requestID,
		Analysis:      analysis,
	}, nil
}

func (s *SearchService) applyFilter(compiled *filter.Filter, results []*ranking.FusedResult) ([]*ranking.FusedResult, error) {
	kept := make([]*ranking.FusedResult, 0, len(results))
	for _, result := range results {
		if result.Record == nil {
			continue
		}
		matched, err := compiled.Matches(result.Record)
		if err != nil {
			return nil, err
		}
		if matched {
			kept = append(kept, result)
		}
	}
	return kept, nil
}

// applyAnalysisFilters narrows results by the criteria the query analyzer
// extracted. The analyzer is fallible, so an analysis that would discard
// every result is ignored rather than returning nothing.
func applyAnalysisFilters(analysis *ai.QueryAnalysis, results []*ranking.FusedResult) []*ranking.FusedResult {
	kept := make([]*ranking.FusedResult, 0, len(results))
	for _, result := range results {
		if result.Record == nil {
			continue
		}
		if matchesAnalysis(analysis, result) {
			kept = append(kept, result)
		}
	}
	if len(kept) == 0 {
		return results
	}
	return kept
}

func matchesAnalysis(analysis *ai.QueryAnalysis, result *ranking.FusedResult) bool {
	attrs := result.Record.Attributes
	if len(analysis.Categories) > 0 && !intersects(analysis.Categories, attrs.GetList("categories")) {
		return false
	}
	if len(analysis.People) > 0 && !intersects(analysis.People, attrs.GetList("people")) {
		return false
	}
	if len(analysis.Places) > 0 && !intersects(analysis.Places, attrs.GetList("places")) {
		return false
	}
	for field, want := range analysis.FieldFilters {
		if got := attrs.GetString(field); got != "" && got != want {
			return false
		}
	}
	return true
}

func intersects(wanted, have []string) bool {
	for _, w := range wanted {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}
