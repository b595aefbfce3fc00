package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitea.com/go-chi/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blogem/gitlab-login/authenticator"
	"github.com/blogem/gitlab-login/controllers"
	"github.com/blogem/gitlab-login/database"
	"github.com/blogem/gitlab-login/logger"
	"github.com/blogem/gitlab-login/metrics"
	"github.com/blogem/gitlab-login/repositories"
	"github.com/blogem/gitlab-login/services"
	"github.com/blogem/gitlab-login/sessionstore"
	"github.com/blogem/gitlab-login/settings"
)

// loadConfig loads .env, the server config and initializes the logger
func loadConfig() (settings.ServerConfig, error) {
	if err := settings.LoadDotEnv(); err != nil {
		return settings.ServerConfig{}, err
	}

	cfg, err := settings.LoadServerConfig()
	if err != nil {
		return settings.ServerConfig{}, err
	}

	logger.Init(logger.Config{Env: cfg.LogEnv, Level: cfg.LogLevel, ServiceName: "gitlab-login"})
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := database.InitializeDatabase(cfg.DatabasePath); err != nil {
				return err
			}
			return database.CloseDB()
		},
	}
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the GitLab settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}

			s, err := settings.Load()
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "base URL:  %s\n", s.BaseAPIURL())
			fmt.Fprintf(out, "scopes:    %v\n", s.Scopes())
			for _, ep := range s.Endpoints() {
				fmt.Fprintf(out, "endpoint:  %s (%s)\n", ep.Path, ep.Name)
			}
			return nil
		},
	}
}

func serve(ctx context.Context, cfg settings.ServerConfig) error {
	log := logger.Named("server")

	if err := database.InitializeDatabase(cfg.DatabasePath); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.CloseDB()

	repos := repositories.NewRepositories(database.GetDB())
	srvs := services.NewServices(repos)

	gitlab, err := settings.Load()
	if err != nil {
		return err
	}
	if err := gitlab.Validate(); err != nil {
		// Keep serving; the login route reports the problem to users
		log.Warn("gitlab provider unusable", zap.Error(err))
	}
	warnDerivedRedirectURL(log, gitlab)

	var verifier authenticator.IDTokenVerifier
	if authenticator.WantsIDToken(gitlab.Scopes()) {
		v, err := authenticator.NewOpenIDVerifier(ctx, gitlab.InstanceURL(), gitlab.ClientID())
		if err != nil {
			log.Warn("id token verification disabled", zap.Error(err))
		} else {
			verifier = v
		}
	}

	factory := func(r *http.Request) (authenticator.Client, error) {
		return authenticator.NewGitLabProviderFromSettings(gitlab, controllers.CallbackURL(r, gitlab), verifier)
	}

	backend, closeBackend, err := newSessionBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	ctrl := controllers.NewControllers(factory, gitlab, sessionstore.NewResolver(backend), srvs, repos)

	r, err := setupRouter(ctrl, sessionOptions(cfg))
	if err != nil {
		return fmt.Errorf("failed to setup router: %w", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gitlab-login starting", zap.String("port", cfg.Port), zap.String("database", cfg.DatabasePath))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newSessionBackend picks where pending authorizations are kept
func newSessionBackend(ctx context.Context, cfg settings.ServerConfig) (sessionstore.Backend, func(), error) {
	switch cfg.SessionProvider {
	case "redis":
		backend, err := sessionstore.NewRedisBackend(ctx, sessionstore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      sessionstore.DefaultTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { _ = backend.Close() }, nil
	case "session":
		return nil, func() {}, nil
	case "memory", "":
		return sessionstore.NewMemoryBackend(sessionstore.DefaultTTL), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown session provider %q", cfg.SessionProvider)
	}
}

// sessionOptions configures the cookie session. With the redis provider the
// session ids themselves live in Redis, so every replica resolves a cookie to
// the same session and the pending data keyed by it.
func sessionOptions(cfg settings.ServerConfig) session.Options {
	opts := session.Options{
		Provider:    "memory",
		CookieName:  "gitlab_login_session",
		Secure:      cfg.UseHTTPS, // Set to true when USE_HTTPS=true (production)
		SameSite:    http.SameSiteLaxMode,
		Gclifetime:  3600,
		Maxlifetime: 3600,
	}

	if cfg.SessionProvider == "redis" {
		opts.Provider = "redis"
		opts.ProviderConfig = fmt.Sprintf("network=tcp,addr=%s,password=%s,db=0,prefix=gitlab-login-session:",
			cfg.RedisAddr, cfg.RedisPassword)
	}
	return opts
}

// warnDerivedRedirectURL flags deployments whose callback URL comes from
// request headers
func warnDerivedRedirectURL(log *zap.Logger, s settings.Provider) {
	if s.RedirectURL() == "" {
		log.Warn("GITLAB_REDIRECT_URL is not set; the callback URL is derived from the Host and X-Forwarded-Proto headers")
	}
}
