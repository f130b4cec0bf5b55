package flows

import (
	"WidgetCS/internal/lib/api/response"
	"WidgetCS/internal/lib/sl"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.flows"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		flows, err := handler.GetFlows()
		if err != nil {
			logger.Error("get flows", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to load flows"))
			return
		}

		logger.Debug("flows listed", slog.Int("count", len(flows)))
		render.JSON(w, r, response.Ok(flows))
	}
}
