package api

import (
	"WidgetCS/internal/config"
	"WidgetCS/internal/http-server/handlers/chat"
	"WidgetCS/internal/http-server/handlers/errors"
	"WidgetCS/internal/http-server/handlers/flows"
	"WidgetCS/internal/http-server/handlers/guided"
	"WidgetCS/internal/http-server/handlers/humanchat"
	"WidgetCS/internal/http-server/middleware/requestlog"
	"WidgetCS/internal/http-server/middleware/timeout"
	"WidgetCS/internal/lib/metrics"
	"WidgetCS/internal/lib/sl"
	"WidgetCS/internal/ws"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	flows.Core
	guided.Core
	humanchat.Core
	chat.Core
}

// NewRouter builds the widget API. The websocket endpoint stays outside the
// request timeout.
func NewRouter(log *slog.Logger, handler Handler, hub *ws.Hub) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestlog.New(log))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Get("/ws/human-chat/{session_id}", humanchat.Realtime(log, hub))
	router.Handle("/metrics", metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(timeout.Timeout(30))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Route("/api", func(api chi.Router) {
			api.Route("/guided-flows", func(r chi.Router) {
				r.Get("/", flows.List(log, handler))
				r.Post("/", flows.Create(log, handler))
				r.Put("/{id}", flows.Update(log, handler))
				r.Delete("/{id}", flows.Delete(log, handler))
			})
			api.Route("/guided-sessions", func(r chi.Router) {
				r.Post("/", guided.Start(log, handler))
				r.Get("/{id}", guided.Get(log, handler))
				r.Delete("/{id}", guided.Close(log, handler))
				r.Post("/{id}/select", guided.Select(log, handler))
				r.Post("/{id}/back", guided.Back(log, handler))
				r.Post("/{id}/reset", guided.Reset(log, handler))
			})
			api.Route("/human-chat", func(r chi.Router) {
				r.Post("/request", humanchat.Request(log, handler))
				r.Get("/waiting", humanchat.Waiting(log, handler))
				r.Get("/{session_id}/messages", humanchat.Messages(log, handler))
				r.Post("/{session_id}/close", humanchat.Close(log, handler))
				r.Post("/{session_id}/join", humanchat.Join(log, handler))
			})
			api.Route("/chat", func(r chi.Router) {
				r.Post("/message", chat.Message(log, handler))
			})
		})
	})

	return router
}

// New serves the API until ctx is done.
func New(ctx context.Context, conf *config.Config, log *slog.Logger, handler Handler, hub *ws.Hub) error {
	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:           NewRouter(log, handler, hub),
		ErrorLog:          httpLog,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIP, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.httpServer.Shutdown(shutdownCtx)
	}()

	server.log.Info("starting api server", slog.String("address", serverAddress))

	err = server.httpServer.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
