package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/server/service/memory"
	"github.com/infoagent/infoagent/store"
)

// MemoryResponse is the JSON shape of a memory.
type MemoryResponse struct {
	ID         int32            `json:"id"`
	UID        string           `json:"uid"`
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	Summary    string           `json:"summary,omitempty"`
	Attributes store.Attributes `json:"attributes,omitempty"`
	WordCount  int              `json:"word_count"`
	CreatedTs  int64            `json:"created_ts"`
	UpdatedTs  int64            `json:"updated_ts"`
	Version    int32            `json:"version"`
}

func toMemoryResponse(m *store.Memory) *MemoryResponse {
	return &MemoryResponse{
		ID:         m.ID,
		UID:        m.UID,
		Title:      m.Title,
		Content:    m.Content,
		Summary:    m.Summary,
		Attributes: m.Attributes,
		WordCount:  m.WordCount,
		CreatedTs:  m.CreatedTs,
		UpdatedTs:  m.UpdatedTs,
		Version:    m.Version,
	}
}

type createMemoryRequest struct {
	Content string `json:"content"`
	Title   string `json:"title"`
}

// CreateMemory handles POST /api/v1/memories.
// Duplicate content returns 409 with the existing memory.
func (s *APIV1Service) CreateMemory(c echo.Context) error {
	req := &createMemoryRequest{}
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	created, err := s.MemoryService.CreateMemory(c.Request().Context(), &memory.CreateRequest{
		Content: req.Content,
		Title:   req.Title,
	})
	if errors.Is(err, memory.ErrDuplicateContent) {
		return c.JSON(http.StatusConflict, map[string]any{
			"error":    "duplicate content",
			"existing": toMemoryResponse(created),
		})
	}
	if err != nil {
		s.logger.Error("create memory failed", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, toMemoryResponse(created))
}

// ListMemories handles GET /api/v1/memories.
func (s *APIV1Service) ListMemories(c echo.Context) error {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	memories, err := s.MemoryService.ListMemories(c.Request().Context(), limit, offset)
	if err != nil {
		s.logger.Error("list memories failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list memories"})
	}

	responses := make([]*MemoryResponse, 0, len(memories))
	for _, m := range memories {
		responses = append(responses, toMemoryResponse(m))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"memories": responses,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetMemory handles GET /api/v1/memories/:id.
func (s *APIV1Service) GetMemory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid memory id"})
	}

	m, err := s.MemoryService.GetMemory(c.Request().Context(), id)
	if err != nil {
		s.logger.Error("get memory failed", "memory_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get memory"})
	}
	if m == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "memory not found"})
	}
	return c.JSON(http.StatusOK, toMemoryResponse(m))
}

type updateMemoryRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Summary *string `json:"summary"`
}

// UpdateMemory handles PATCH /api/v1/memories/:id.
func (s *APIV1Service) UpdateMemory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid memory id"})
	}

	req := &updateMemoryRequest{}
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	updated, err := s.MemoryService.UpdateMemory(c.Request().Context(), &memory.UpdateRequest{
		ID:      id,
		Title:   req.Title,
		Content: req.Content,
		Summary: req.Summary,
	})
	if err != nil {
		s.logger.Warn("update memory failed", "memory_id", id, "error", err)
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, toMemoryResponse(updated))
}

// DeleteMemory handles DELETE /api/v1/memories/:id.
func (s *APIV1Service) DeleteMemory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid memory id"})
	}

	if err := s.MemoryService.DeleteMemory(c.Request().Context(), id); err != nil {
		s.logger.Error("delete memory failed", "memory_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete memory"})
	}
	return c.NoContent(http.StatusNoContent)
}

// StatusResponse reports instance health and store counters.
type StatusResponse struct {
	Version         string `json:"version"`
	Mode            string `json:"mode"`
	AIEnabled       bool   `json:"ai_enabled"`
	TotalMemories   int64  `json:"total_memories"`
	MemoriesWeek    int64  `json:"memories_week"`
	MemoriesMonth   int64  `json:"memories_month"`
	TotalEmbeddings int64  `json:"total_embeddings"`
}

// GetStatus handles GET /api/v1/status.
func (s *APIV1Service) GetStatus(c echo.Context) error {
	stats, err := s.MemoryService.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error("stats query failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load stats"})
	}
	return c.JSON(http.StatusOK, &StatusResponse{
		Version:         s.Profile.Version,
		Mode:            s.Profile.Mode,
		AIEnabled:       s.Profile.IsAIEnabled(),
		TotalMemories:   stats.TotalMemories,
		MemoriesWeek:    stats.MemoriesWeek,
		MemoriesMonth:   stats.MemoriesMonth,
		TotalEmbeddings: stats.TotalEmbeddings,
	})
}

func pathID(c echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(id), nil
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
