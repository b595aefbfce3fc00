package main

import (
	"fmt"
	"net/http"
	"time"

	"gitea.com/go-chi/session"
	_ "gitea.com/go-chi/session/redis"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blogem/gitlab-login/controllers"
	"github.com/blogem/gitlab-login/logger"
	authmiddleware "github.com/blogem/gitlab-login/middleware"
)

// setupRouter configures all routes
func setupRouter(ctrl *controllers.Controllers, sessionOpts session.Options) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(authmiddleware.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second)) // 60 second timeout for OAuth callbacks

	// Session middleware
	sessionHandler, err := session.Sessioner(sessionOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status": "healthy", "service": "gitlab-login"}`)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(sessionHandler)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/account", http.StatusSeeOther)
		})
		r.Get(controllers.LoginPath, ctrl.Auth.Login)
		r.Get(controllers.RedirectPath, ctrl.Auth.Redirect)
		r.Get(controllers.CallbackPath, ctrl.Auth.Callback)
		r.Get("/logout", ctrl.Auth.Logout)

		r.With(authmiddleware.RequireAuth).Get("/account", ctrl.Account.Index)
	})

	return r, nil
}
