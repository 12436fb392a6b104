package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/consensus/internal/aiconnectors"
	"github.com/consensus/internal/chat"
	"github.com/consensus/internal/registry"
	"github.com/consensus/pkg/models"
)

// ProviderModelsResponse is the model list of one provider. Live is false when the
// list came from the static catalog.
type ProviderModelsResponse struct {
	Provider string         `json:"provider"`
	Models   []models.Model `json:"models"`
	Live     bool           `json:"live"`
}

type createConversationRequest struct {
	Title        string   `json:"title"`
	ActiveModels []string `json:"activeModels"`
}

type turnRequest struct {
	Prompt       string   `json:"prompt"`
	ActiveModels []string `json:"activeModels,omitempty"`
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, aiconnectors.ErrorResponse{Message: message})
}

func (s *Server) listProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Catalog.ListProviders())
}

// GET /api/v1/models/:provider
func (s *Server) listProviderModels(c echo.Context) error {
	providerID := c.Param("provider")

	list, err := s.deps.Catalog.Refresh(c.Request().Context(), providerID)
	if err != nil {
		if errors.Is(err, registry.ErrProviderNotFound) {
			return c.JSON(http.StatusNotFound, aiconnectors.ErrorResponse{Message: "Provider not found"})
		}
		log.Warn().Err(err).Str("provider", providerID).Msg("Serving catalog models after failed refresh")
	}

	return c.JSON(http.StatusOK, ProviderModelsResponse{
		Provider: providerID,
		Models:   list,
		Live:     err == nil,
	})
}

func (s *Server) getSettings(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	settings, err := s.deps.Chat.Settings(c.Request().Context(), owner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

func (s *Server) updateSettings(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	var req models.UserSettings
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	settings, err := s.deps.Chat.UpdateSettings(c.Request().Context(), owner, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

func (s *Server) listConversations(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	list, err := s.deps.Chat.ListConversations(c.Request().Context(), owner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) createConversation(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	rec, err := s.deps.Chat.CreateConversation(c.Request().Context(), owner, req.Title, req.ActiveModels)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (s *Server) getConversation(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	rec, err := s.deps.Chat.GetConversation(c.Request().Context(), owner, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) updateConversation(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	var req chat.ConversationUpdate
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	rec, err := s.deps.Chat.UpdateConversation(c.Request().Context(), owner, c.Param("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) deleteConversation(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	if err := s.deps.Chat.DeleteConversation(c.Request().Context(), owner, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// POST /api/v1/conversations/:id/turns
func (s *Server) submitTurn(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	var req turnRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := s.deps.Chat.SubmitTurn(c.Request().Context(), chat.TurnRequest{
		Owner:          owner,
		ConversationID: c.Param("id"),
		Prompt:         req.Prompt,
		ActiveModels:   req.ActiveModels,
	}, nil)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
