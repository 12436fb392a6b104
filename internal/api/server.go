package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/consensus/internal/aiconnectors"
	"github.com/consensus/internal/api/auth"
	"github.com/consensus/internal/chat"
	"github.com/consensus/pkg/models"
)

// ModelCatalog is the registry surface the API reads from.
type ModelCatalog interface {
	ListProviders() []models.Provider
	Refresh(ctx context.Context, providerID string) ([]models.Model, error)
}

// Deps are the services the API is built on.
type Deps struct {
	Chat    *chat.Service
	Catalog ModelCatalog
	Sender  aiconnectors.Sender
	Tokens  *auth.TokenService
}

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int
	deps Deps
}

// NewServer creates a new API server
func NewServer(port int, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAuthorization, auth.GuestSessionHeader},
		ExposeHeaders: []string{auth.GuestSessionHeader},
	}))

	server := &Server{
		echo: e,
		port: port,
		deps: deps,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")

	aiconnectors.RegisterHandlers(v1, s.deps.Sender)

	v1.GET("/models", s.listProviders)
	v1.GET("/models/:provider", s.listProviderModels)

	user := v1.Group("", auth.Identify(s.deps.Tokens))
	user.GET("/settings", s.getSettings)
	user.PUT("/settings", s.updateSettings)

	user.GET("/conversations", s.listConversations)
	user.POST("/conversations", s.createConversation)
	user.GET("/conversations/:id", s.getConversation)
	user.PUT("/conversations/:id", s.updateConversation)
	user.DELETE("/conversations/:id", s.deleteConversation)
	user.POST("/conversations/:id/turns", s.submitTurn)
	user.POST("/conversations/:id/turns/stream", s.streamTurn)
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.port).Msg("API server listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info().Msg("Shutting down API server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// statusFor maps service and gateway errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case chat.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrEmptyPrompt),
		errors.Is(err, chat.ErrNoActiveModels),
		errors.Is(err, chat.ErrInvalidSettings):
		return http.StatusBadRequest
	default:
		return aiconnectors.HTTPStatus(err)
	}
}

func respondError(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}

	body := aiconnectors.ErrorResponse{Message: err.Error()}
	if chat.IsNotFound(err) {
		body.Message = "Conversation not found"
	}
	var gwErr *aiconnectors.GatewayError
	if errors.As(err, &gwErr) && gwErr.Kind == aiconnectors.KindUpstream {
		body.Status = gwErr.StatusCode
	}
	return c.JSON(status, body)
}

func ownerOf(c echo.Context) (chat.Owner, error) {
	identity, ok := auth.FromContext(c)
	if !ok {
		return chat.Owner{}, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return chat.Owner{ID: identity.ID, Guest: identity.Guest}, nil
}
