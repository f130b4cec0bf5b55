package humanchat

import (
	"WidgetCS/impl/core"
	"WidgetCS/internal/lib/api/response"
	"WidgetCS/internal/lib/sl"
	"WidgetCS/internal/ws"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type RequestRequest struct {
	ConversationID string `json:"conversation_id" validate:"omitempty,max=128"`
}

type CloseRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=256"`
}

type JoinRequest struct {
	AgentID   string `json:"agent_id" validate:"required"`
	AgentName string `json:"agent_name"`
}

func logger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.humanchat"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return validate.Struct(v)
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("Session not found"))
	case errors.Is(err, core.ErrSessionClosed):
		render.Status(r, http.StatusGone)
		render.JSON(w, r, response.Error("Session is closed"))
	case errors.Is(err, core.ErrSessionTaken):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("Session is handled by another agent"))
	default:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("Human chat failed"))
	}
}

func Request(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RequestRequest
		if err := decode(r, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		session, err := handler.RequestHumanChat(req.ConversationID)
		if err != nil {
			logger(log, r).Error("request human chat", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(map[string]any{"session": session}))
	}
}

func Messages(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messages, err := handler.SessionMessages(chi.URLParam(r, "session_id"))
		if err != nil {
			logger(log, r).Debug("session messages", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(messages))
	}
}

func Close(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CloseRequest
		if err := decode(r, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		session, err := handler.CloseHumanChat(chi.URLParam(r, "session_id"), req.Reason)
		if err != nil {
			logger(log, r).Warn("close human chat", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(session))
	}
}

func Waiting(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := handler.WaitingSessions()
		if err != nil {
			logger(log, r).Error("waiting sessions", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(sessions))
	}
}

func Join(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinRequest
		if err := decode(r, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("agent_id is required"))
			return
		}

		session, err := handler.JoinHumanChat(chi.URLParam(r, "session_id"), req.AgentID, req.AgentName)
		if err != nil {
			logger(log, r).Warn("join human chat", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(session))
	}
}

// Realtime upgrades to the session room websocket.
func Realtime(log *slog.Logger, hub *ws.Hub) http.HandlerFunc {
	log = log.With(sl.Module("http.handlers.humanchat.ws"))
	return func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, log, w, r, chi.URLParam(r, "session_id"))
	}
}
