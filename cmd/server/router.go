package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mailpilot/mailpilot-api/internal/api"
	apiMiddleware "github.com/mailpilot/mailpilot-api/internal/api/middleware"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authHandler := api.NewAuthHandler(app.users)
	syncHandler := api.NewSyncHandler(app.syncs)
	reportHandler := api.NewReportHandler(app.reports)
	chatHandler := api.NewChatHandler(app.chats)
	debugHandler := api.NewDebugHandler(map[string]api.StatsProvider{
		"inboxes":  app.inboxCache,
		"reports":  app.reportCache,
		"sessions": app.sessionCache,
	})
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		// Authentication endpoints (public)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Inbox sync
			r.Post("/sync", syncHandler.Start)
			r.Get("/sync/status", syncHandler.Status)
			r.Get("/sync/wait", syncHandler.Wait)
			r.Get("/inbox", syncHandler.Inbox)

			// Daily reports
			r.Post("/reports/daily", reportHandler.Start)
			r.Get("/reports/daily", reportHandler.Latest)
			r.Get("/reports/daily/status", reportHandler.Status)
			r.Get("/reports/daily/wait", reportHandler.Wait)

			// Chat
			r.Post("/chat", chatHandler.Reply)
			r.Post("/chat/reset", chatHandler.ResetSession)

			// Operator introspection
			r.Get("/debug/cache", debugHandler.CacheStats)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
