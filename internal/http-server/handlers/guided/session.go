package guided

import (
	"WidgetCS/impl/core"
	engine "WidgetCS/internal/guided"
	"WidgetCS/internal/lib/api/response"
	"WidgetCS/internal/lib/sl"
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

type ModeRequest struct {
	Mode string `json:"mode" validate:"omitempty,oneof=guided chat faq"`
}

type SelectRequest struct {
	OptionID string `json:"option_id" validate:"required"`
}

// StepResponse reports whether a command changed the session.
type StepResponse struct {
	Session  *core.GuidedSession `json:"session"`
	Accepted bool                `json:"accepted"`
}

func logger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.guided"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("Guided session not found"))
	case errors.Is(err, engine.ErrUnknownMode):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(err.Error()))
	default:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("Guided session failed"))
	}
}

// decode accepts an empty body as the zero request.
func decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return validate.Struct(v)
}

func Start(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ModeRequest
		if err := decode(r, &req); err != nil {
			logger(log, r).Debug("invalid start request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		session, err := handler.StartGuidedSession(req.Mode)
		if err != nil {
			logger(log, r).Error("start guided session", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(session))
	}
}

func Get(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := handler.GuidedSession(chi.URLParam(r, "id"))
		if err != nil {
			logger(log, r).Debug("get guided session", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(session))
	}
}

func Select(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectRequest
		if err := decode(r, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("option_id is required"))
			return
		}

		session, accepted, err := handler.SelectGuidedOption(chi.URLParam(r, "id"), req.OptionID)
		if err != nil {
			logger(log, r).Debug("select option", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(StepResponse{Session: session, Accepted: accepted}))
	}
}

func Back(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, moved, err := handler.GuidedBack(chi.URLParam(r, "id"))
		if err != nil {
			logger(log, r).Debug("go back", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(StepResponse{Session: session, Accepted: moved}))
	}
}

func Reset(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ModeRequest
		if err := decode(r, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid mode"))
			return
		}

		session, err := handler.ResetGuidedSession(chi.URLParam(r, "id"), req.Mode)
		if err != nil {
			logger(log, r).Debug("reset session", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(session))
	}
}

func Close(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := handler.CloseGuidedSession(id); err != nil {
			logger(log, r).Debug("close session", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(id))
	}
}
