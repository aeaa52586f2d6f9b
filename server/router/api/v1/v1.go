// Package v1 exposes the JSON HTTP API.
package v1

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/infoagent/infoagent/internal/profile"
	"github.com/infoagent/infoagent/server/service/memory"
)

type APIV1Service struct {
	Profile       *profile.Profile
	MemoryService *memory.Service
	SearchService *memory.SearchService

	snippeter *memory.Snippeter
	logger    *slog.Logger
}

func NewAPIV1Service(prof *profile.Profile, memoryService *memory.Service, searchService *memory.SearchService, logger *slog.Logger) *APIV1Service {
	return &APIV1Service{
		Profile:       prof,
		MemoryService: memoryService,
		SearchService: searchService,
		snippeter:     memory.NewSnippeter(),
		logger:        logger,
	}
}

// RegisterRoutes mounts the API under /api/v1.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	group := echoServer.Group("/api/v1")

	group.POST("/memories", s.CreateMemory)
	group.GET("/memories", s.ListMemories)
	group.GET("/memories/:id", s.GetMemory)
	group.PATCH("/memories/:id", s.UpdateMemory)
	group.DELETE("/memories/:id", s.DeleteMemory)

	group.GET("/search", s.Search)
	group.GET("/status", s.GetStatus)
}
