package ai

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"
)

// QueryAnalysis is the structured interpretation of a free-form search query.
type QueryAnalysis struct {
	FieldFilters  map[string]string `json:"field_filters"`
	Categories    []string          `json:"categories"`
	People        []string          `json:"people"`
	Places        []string          `json:"places"`
	DateHints     []string          `json:"date_hints"`
	PriorityLevel string            `json:"priority_level"`
	SearchIntent  string            `json:"search_intent"`
}

// HasFilters reports whether the analysis produced any filter criteria.
func (a *QueryAnalysis) HasFilters() bool {
	return len(a.FieldFilters) > 0 || len(a.Categories) > 0 || len(a.People) > 0 || len(a.Places) > 0
}

// QueryAnalyzer extracts structured filter criteria from search queries.
type QueryAnalyzer struct {
	llm    LLMService
	logger *slog.Logger
}

func NewQueryAnalyzer(llm LLMService, logger *slog.Logger) *QueryAnalyzer {
	return &QueryAnalyzer{llm: llm, logger: logger}
}

// Analyze runs the search analysis prompt against the LLM. Failures are
// returned to the caller, which is expected to fall back to plain search.
func (a *QueryAnalyzer) Analyze(ctx context.Context, query string) (*QueryAnalysis, error) {
	response, err := a.llm.Chat(ctx, []Message{
		{Role: "user", Content: searchAnalysisPrompt(query)},
	})
	if err != nil {
		return nil, errors.Wrap(err, "search analysis chat completion")
	}

	analysis := &QueryAnalysis{}
	if err := json.Unmarshal([]byte(extractJSON(response)), analysis); err != nil {
		a.logger.Warn("failed to parse search analysis response", "error", err)
		return nil, errors.Wrap(err, "parse search analysis response")
	}
	return analysis, nil
}
