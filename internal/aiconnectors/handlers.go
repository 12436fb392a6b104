package aiconnectors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/consensus/pkg/models"
)

// PromptRequest represents the request body for a single-model prompt
type PromptRequest struct {
	Prompt   string                `json:"prompt"`
	Model    string                `json:"model"`
	Provider string                `json:"provider"`
	Settings *models.ModelSettings `json:"settings,omitempty"`
}

// PromptResponse represents a successful single-model completion
type PromptResponse struct {
	Response string `json:"response"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ErrorResponse carries a human-readable message and, for upstream failures, the provider status.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// RegisterHandlers registers the gateway endpoints on the given group
func RegisterHandlers(g *echo.Group, sender Sender) {
	g.POST("/prompt", promptHandler(sender))
}

func promptHandler(sender Sender) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req PromptRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request body"})
		}

		if strings.TrimSpace(req.Prompt) == "" {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Prompt is required"})
		}
		if req.Model == "" || req.Provider == "" {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Model and provider are required"})
		}

		settings := models.DefaultModelSettings()
		if req.Settings != nil {
			settings = *req.Settings
		}

		text, err := sender.Send(c.Request().Context(), Request{
			Prompt:     req.Prompt,
			ModelID:    req.Model,
			ProviderID: req.Provider,
			Settings:   settings,
		})
		if err != nil {
			log.Error().Err(err).
				Str("provider", req.Provider).
				Str("model", req.Model).
				Msg("Prompt request failed")
			return c.JSON(HTTPStatus(err), errorBody(err))
		}

		return c.JSON(http.StatusOK, PromptResponse{
			Response: text,
			Provider: req.Provider,
			Model:    req.Model,
		})
	}
}

// HTTPStatus maps a gateway error onto the status returned to API clients.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrEmptyPrompt) {
		return http.StatusBadRequest
	}
	switch KindOf(err) {
	case KindUnsupportedProvider:
		return http.StatusBadRequest
	case KindUpstream, KindMalformedResponse:
		return http.StatusBadGateway
	case KindTransport:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) ErrorResponse {
	body := ErrorResponse{Message: err.Error()}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.Kind == KindUpstream {
		body.Status = gwErr.StatusCode
	}
	return body
}
