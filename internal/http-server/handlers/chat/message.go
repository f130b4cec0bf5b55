package chat

import (
	"WidgetCS/impl/core"
	"WidgetCS/internal/lib/api/response"
	"WidgetCS/internal/lib/sl"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type MessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text" validate:"required,max=4000"`
}

func Message(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.chat"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req MessageRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("text is required"))
			return
		}

		reply, err := handler.ChatMessage(r.Context(), req.ConversationID, req.Text)
		if err != nil {
			if errors.Is(err, core.ErrAssistantDisabled) {
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, response.Error("Chat assistant is not available"))
				return
			}
			logger.Error("chat message", sl.Err(err))
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, response.Error("Failed to compose response"))
			return
		}

		logger.With(
			slog.String("conversation_id", reply.ConversationID),
			slog.Int("products", len(reply.Recommendations.Products)),
			slog.Int("accessories", len(reply.Recommendations.Accessories)),
		).Debug("chat reply")
		render.JSON(w, r, response.Ok(reply))
	}
}
