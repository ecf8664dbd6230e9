package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phrazzld/taskrelay/internal/api"
	apiMiddleware "github.com/phrazzld/taskrelay/internal/api/middleware"
)

// setupRouter registers every route on a chi router.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	taskHandler := api.NewTaskHandler(app.gateway, api.StreamSettings{
		Keepalive:  app.config.Stream.KeepaliveInterval,
		BufferSize: app.config.Stream.BufferSize,
	}, app.logger)
	socketHandler := api.NewSocketHandler(app.gateway, api.SocketSettings{
		PingInterval: app.config.Stream.KeepaliveInterval,
	}, app.logger)
	schemaHandler := api.NewSchemaHandler(app.registry)
	backgroundHandler := api.NewBackgroundHandler(app.validator, app.emitter, app.logger)
	healthHandler := api.NewHealthHandler(app.scheduler)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiMiddleware.Identity)

		r.Post("/tasks/{service}", taskHandler.ExecuteTask)
		r.Post("/background", backgroundHandler.SubmitBackground)
		r.Get("/schema", schemaHandler.GetSchema)
		r.Handle("/socket", socketHandler)
	})

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.HandlerFor(app.reg, promhttp.HandlerOpts{}))

	return r
}
