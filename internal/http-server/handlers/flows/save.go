package flows

import (
	"WidgetCS/entity"
	"WidgetCS/internal/lib/api/response"
	"WidgetCS/internal/lib/sl"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.flows"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var flow entity.Flow
		if err := render.DecodeJSON(r.Body, &flow); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		result, err := handler.CreateFlow(flow)
		if err != nil {
			logger.Warn("create flow", slog.String("name", flow.Name), sl.Err(err))
			render.Status(r, errorStatus(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Failed to create flow: %v", err)))
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(result))
	}
}

func Update(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		logger := log.With(
			sl.Module("http.handlers.flows"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("id", id),
		)

		var flow entity.Flow
		if err := render.DecodeJSON(r.Body, &flow); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		result, err := handler.UpdateFlow(id, flow)
		if err != nil {
			logger.Warn("update flow", sl.Err(err))
			render.Status(r, errorStatus(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Failed to update flow: %v", err)))
			return
		}

		render.JSON(w, r, response.Ok(result))
	}
}

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		logger := log.With(
			sl.Module("http.handlers.flows"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("id", id),
		)

		if err := handler.DeleteFlow(id); err != nil {
			logger.Warn("delete flow", sl.Err(err))
			render.Status(r, errorStatus(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Failed to delete flow: %v", err)))
			return
		}

		render.JSON(w, r, response.Ok(id))
	}
}
