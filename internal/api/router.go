package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/postpilot/internal/api/middleware"
	"github.com/phrazzld/postpilot/internal/auth"
)

// RouterDeps are the collaborators the HTTP routes are built from.
type RouterDeps struct {
	Engine TaskEngine
	Relay  CommandRelay
	Tokens auth.TokenService
	DB     Pinger
	Logger *slog.Logger
}

// NewRouter builds the chi router with every route and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewTraceMiddleware(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	tasks := NewTaskHandler(deps.Engine)
	mobile := NewMobileHandler(deps.Relay)
	authMiddleware := middleware.NewAuthMiddleware(deps.Tokens)

	r.Route("/api", func(r chi.Router) {
		// devices identify themselves by device ID inside the command
		r.Post("/mobile/commands", mobile.HandleCommand)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Post("/tasks", tasks.SubmitTask)
			r.Get("/tasks/{id}", tasks.GetTask)
			r.Post("/tasks/{id}/cancel", tasks.CancelTask)
		})
	})

	r.Get("/health", NewHealthHandler(deps.Engine, deps.DB).Health)

	return r
}
