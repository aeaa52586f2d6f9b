package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/infoagent/infoagent/server/ranking"
	"github.com/infoagent/infoagent/server/service/memory"
)

// SearchResultResponse is one ranked search hit.
type SearchResultResponse struct {
	Memory      *MemoryResponse    `json:"memory"`
	Score       float64            `json:"score"`
	Confidence  float64            `json:"confidence"`
	Sources     []string           `json:"sources"`
	Snippet     string             `json:"snippet,omitempty"`
	Highlights  []memory.Highlight `json:"highlights,omitempty"`
	Explanation string             `json:"explanation,omitempty"`
}

// SearchResponse is the JSON shape of a search outcome.
type SearchResponse struct {
	Results       []*SearchResultResponse `json:"results"`
	Mode          string                  `json:"mode"`
	FailedSources []string                `json:"failed_sources,omitempty"`
	RequestID     string                  `json:"request_id"`
	SearchIntent  string                  `json:"search_intent,omitempty"`
}

// Search handles GET /api/v1/search.
// Query parameters: q (required), limit, filter (CEL expression).
func (s *APIV1Service) Search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query parameter 'q' is required"})
	}

	resp, err := s.SearchService.Search(c.Request().Context(), &memory.SearchOptions{
		Query:  query,
		Limit:  queryInt(c, "limit", 10),
		Filter: c.QueryParam("filter"),
	})
	if err != nil {
		s.logger.Warn("search failed", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	results := make([]*SearchResultResponse, 0, len(resp.Results))
	for _, result := range resp.Results {
		results = append(results, s.toSearchResult(result, query))
	}

	out := &SearchResponse{
		Results:       results,
		Mode:          string(resp.Mode),
		FailedSources: resp.FailedSources,
		RequestID:     resp.RequestID,
	}
	if resp.Analysis != nil {
		out.SearchIntent = resp.Analysis.SearchIntent
	}
	return c.JSON(http.StatusOK, out)
}

func (s *APIV1Service) toSearchResult(result *ranking.FusedResult, query string) *SearchResultResponse {
	out := &SearchResultResponse{
		Score:       result.FusedScore,
		Confidence:  result.Confidence,
		Sources:     result.ContributingSources,
		Explanation: result.Explanation,
	}
	if result.Record != nil {
		out.Memory = toMemoryResponse(result.Record)
		out.Snippet, out.Highlights = s.snippeter.Extract(result.Record.Content, query)
	}
	return out
}
