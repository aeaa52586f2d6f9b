// Package server wires the HTTP surface and background runners together.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/internal/profile"
	apimiddleware "github.com/infoagent/infoagent/server/middleware"
	apiv1 "github.com/infoagent/infoagent/server/router/api/v1"
	"github.com/infoagent/infoagent/server/runner/embedding"
	"github.com/infoagent/infoagent/store"
)

type Server struct {
	profile    *profile.Profile
	store      *store.Store
	echoServer *echo.Echo
	logger     *slog.Logger

	embeddingRunner *embedding.Runner
}

// New assembles the HTTP server. embeddingRunner may be nil when AI is
// disabled.
func New(prof *profile.Profile, st *store.Store, api *apiv1.APIV1Service, embeddingRunner *embedding.Runner, logger *slog.Logger) *Server {
	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true

	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.CORS())
	echoServer.Use(apimiddleware.NewPerClientLimiter(10, 20).Middleware())
	echoServer.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
			)
			return nil
		},
	}))

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	api.RegisterRoutes(echoServer)

	return &Server{
		profile:         prof,
		store:           st,
		echoServer:      echoServer,
		logger:          logger,
		embeddingRunner: embeddingRunner,
	}
}

// Start launches background runners and serves HTTP until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.embeddingRunner != nil {
		go s.embeddingRunner.Run(ctx)
	}

	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	s.logger.Info("server started", "address", address, "mode", s.profile.Mode)
	if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "start http server")
	}
	return nil
}

// Shutdown drains HTTP connections and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shut down http server", "error", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("failed to close store", "error", err)
	}
	s.logger.Info("server shut down")
}
