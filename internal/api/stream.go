package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/consensus/internal/aiconnectors"
	"github.com/consensus/internal/chat"
)

// streamTurn runs a turn and writes each turn event as a Server-Sent Event. Errors
// raised before the first event are returned as a regular JSON error response.
func (s *Server) streamTurn(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	var req turnRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	w := c.Response()
	started := false
	observe := func(ev chat.Event) {
		if !started {
			w.Header().Set(echo.HeaderContentType, "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := writeEvent(w, string(ev.Type), ev); err != nil {
			log.Debug().Err(err).Msg("Failed to write stream event")
		}
	}

	_, err = s.deps.Chat.SubmitTurn(c.Request().Context(), chat.TurnRequest{
		Owner:          owner,
		ConversationID: c.Param("id"),
		Prompt:         req.Prompt,
		ActiveModels:   req.ActiveModels,
	}, observe)
	if err != nil {
		if !started {
			return respondError(c, err)
		}
		return writeEvent(w, "error", aiconnectors.ErrorResponse{Message: err.Error()})
	}
	return nil
}

func writeEvent(w *echo.Response, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
