package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/infoagent/infoagent/internal/profile"
	"github.com/infoagent/infoagent/plugin/filter"
	"github.com/infoagent/infoagent/server/ranking"
	"github.com/infoagent/infoagent/server/retrieval"
	"github.com/infoagent/infoagent/server/service/memory"
	"github.com/infoagent/infoagent/store"
	"github.com/infoagent/infoagent/store/storetest"
)

func newTestServer(t *testing.T) (*echo.Echo, *store.Store) {
	t.Helper()
	driver := storetest.NewFakeDriver()
	st := store.New(driver, &profile.Profile{Version: "0.1.0", Mode: "dev"})
	t.Cleanup(func() { _ = st.Close() })

	logger := slog.Default()
	memoryService := memory.NewService(st, nil, nil, logger)

	engine, err := filter.NewEngine()
	require.NoError(t, err)
	searcher := retrieval.NewHybridSearcher(
		[]retrieval.Provider{retrieval.NewStructuredProvider(st)},
		ranking.NewRanker(ranking.Config{}),
		logger,
	)
	searchService := memory.NewSearchService(searcher, nil, engine, logger)

	api := NewAPIV1Service(&profile.Profile{Version: "0.1.0", Mode: "dev"}, memoryService, searchService, logger)
	e := echo.New()
	api.RegisterRoutes(e)
	return e, st
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetMemory(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/memories", `{"content": "Remember to review the quarterly report."}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	created := &MemoryResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), created))
	require.NotZero(t, created.ID)
	require.NotEmpty(t, created.Title)
	require.Equal(t, 6, created.WordCount)

	rec = doRequest(e, http.MethodGet, fmt.Sprintf("/api/v1/memories/%d", created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := &MemoryResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), got))
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, "Remember to review the quarterly report.", got.Content)
}

func TestCreateMemoryDuplicateReturnsConflict(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/memories", `{"content": "same thing"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(e, http.MethodPost, "/api/v1/memories", `{"content": "same thing"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "duplicate content")
}

func TestCreateMemoryEmptyContent(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/memories", `{"content": ""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMemoriesPagination(t *testing.T) {
	e, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := doRequest(e, http.MethodPost, "/api/v1/memories", fmt.Sprintf(`{"content": "note number %d"}`, i))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(e, http.MethodGet, "/api/v1/memories?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Memories []*MemoryResponse `json:"memories"`
		Limit    int               `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Memories, 2)
	require.Equal(t, 2, body.Limit)
}

func TestUpdateMemory(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/memories", `{"content": "original"}`)
	created := &MemoryResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), created))

	rec = doRequest(e, http.MethodPatch, fmt.Sprintf("/api/v1/memories/%d", created.ID), `{"title": "New Title"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	updated := &MemoryResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), updated))
	require.Equal(t, "New Title", updated.Title)
	require.Equal(t, created.Version+1, updated.Version)
}

func TestUpdateMemoryNotFound(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPatch, "/api/v1/memories/42", `{"title": "x"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMemory(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/memories", `{"content": "to be deleted"}`)
	created := &MemoryResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), created))

	rec = doRequest(e, http.MethodDelete, fmt.Sprintf("/api/v1/memories/%d", created.ID), "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(e, http.MethodGet, fmt.Sprintf("/api/v1/memories/%d", created.ID), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidMemoryID(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodGet, "/api/v1/memories/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatus(t *testing.T) {
	e, st := newTestServer(t)

	_, err := st.CreateMemory(context.Background(), &store.Memory{Content: "one"})
	require.NoError(t, err)

	rec := doRequest(e, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	status := &StatusResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), status))
	require.Equal(t, "0.1.0", status.Version)
	require.Equal(t, int64(1), status.TotalMemories)
}

func TestSearchEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	for _, content := range []string{
		"Planning the garden layout for spring.",
		"Garden tools shopping list.",
		"Completely unrelated note about taxes.",
	} {
		rec := doRequest(e, http.MethodPost, "/api/v1/memories", fmt.Sprintf(`{"content": %q}`, content))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(e, http.MethodGet, "/api/v1/search?q=garden", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := &SearchResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp))
	require.Equal(t, "fused", resp.Mode)
	require.NotEmpty(t, resp.RequestID)
	require.Len(t, resp.Results, 2)
	for _, result := range resp.Results {
		require.NotNil(t, result.Memory)
		require.Contains(t, strings.ToLower(result.Memory.Content), "garden")
		require.Contains(t, result.Sources, "structured")
		require.NotEmpty(t, result.Snippet)
		require.NotEmpty(t, result.Highlights)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodGet, "/api/v1/search", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchWithInvalidFilter(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodGet, "/api/v1/search?q=note&filter=category+%3D%3D", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
