package errors

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"WidgetCS/internal/lib/api/response"
	"WidgetCS/internal/lib/sl"
)

// NotAllowed answers a known path requested with the wrong method.
func NotAllowed(log *slog.Logger) http.HandlerFunc {
	mod := sl.Module("http.handlers.errors")
	return func(w http.ResponseWriter, r *http.Request) {
		log.With(mod).Debug("method not allowed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		render.Status(r, http.StatusMethodNotAllowed)
		render.JSON(w, r, response.Error("Method "+r.Method+" is not allowed here"))
	}
}
