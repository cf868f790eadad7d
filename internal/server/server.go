// Пакет server — HTTP-сервер groundplane с graceful shutdown.
// Без TLS — TLS termination на reverse proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/The-UnknownHacker/groundplane/internal/api/handlers"
	"github.com/The-UnknownHacker/groundplane/internal/api/middleware"
	"github.com/The-UnknownHacker/groundplane/internal/config"
	uihandlers "github.com/The-UnknownHacker/groundplane/internal/ui/handlers"
	uimiddleware "github.com/The-UnknownHacker/groundplane/internal/ui/middleware"
)

// Routes — обработчики и middleware, из которых собирается роутер.
type Routes struct {
	Health   *handlers.HealthHandler
	Logs     *handlers.LogsHandler
	Projects *handlers.ProjectsHandler
	Export   *handlers.ExportHandler
	Settings *handlers.SettingsHandler
	Admin    *handlers.AdminHandler
	Temp     *handlers.TempHandler

	Auth        *uihandlers.AuthHandler
	SessionAuth *uimiddleware.SessionAuth
	// AdminChecker — проверка флага администратора (service.UserService)
	AdminChecker uimiddleware.AdminChecker
}

// Server — HTTP-сервер groundplane.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, routes Routes) *Server {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     NewRouter(cfg, logger, routes),
		ReadTimeout: 30 * time.Second,
		// Создание лога с медиа ждёт загрузки в CDN
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер.
// Публичные: /health/*, /metrics, /login, /auth/callback, /logout, /temp/{id}.
// По сессии: /, /api/*. Администраторам: /api/admin/*.
func NewRouter(cfg *config.Config, logger *slog.Logger, routes Routes) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}

	// Health и metrics — без сессии
	router.Get("/health/live", routes.Health.HealthLive)
	router.Get("/health/ready", routes.Health.HealthReady)
	router.Get("/metrics", routes.Health.GetMetrics)

	// Slack OAuth
	router.Get("/login", routes.Auth.HandleLogin)
	router.Get("/auth/callback", routes.Auth.HandleCallback)
	router.Post("/logout", routes.Auth.HandleLogout)
	router.Get("/logout", routes.Auth.HandleLogout)

	// CDN забирает staged-файлы без сессии
	router.Get("/temp/{id}", routes.Temp.Serve)

	router.Group(func(r chi.Router) {
		r.Use(routes.SessionAuth.Middleware())

		r.Get("/", routes.Auth.HandleIndex)

		r.Route("/api", func(r chi.Router) {
			r.Route("/logs", func(r chi.Router) {
				r.Get("/", routes.Logs.List)
				r.Post("/", routes.Logs.Create)
				r.Get("/{id}", routes.Logs.Get)
				r.Patch("/{id}", routes.Logs.Update)
				r.Delete("/{id}", routes.Logs.Delete)
			})

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", routes.Projects.List)
				r.Post("/", routes.Projects.Create)
				r.Get("/{id}", routes.Projects.Get)
				r.Patch("/{id}", routes.Projects.Update)
				r.Delete("/{id}", routes.Projects.Delete)
				r.Get("/{id}/logs", routes.Projects.Logs)
			})

			r.Get("/export/logs.csv", routes.Export.CSV)
			r.Get("/export/logs.json", routes.Export.JSON)

			r.Get("/settings", routes.Settings.Get)
			r.Put("/settings", routes.Settings.Put)

			r.Route("/admin", func(r chi.Router) {
				r.Use(uimiddleware.RequireAdmin(routes.AdminChecker, logger))

				r.Get("/users", routes.Admin.Users)
				r.Get("/projects", routes.Admin.Projects)
				r.Get("/projects/{id}/log-count", routes.Admin.ProjectLogCount)
				r.Get("/logs/recent", routes.Admin.RecentLogs)
				r.Get("/overview", routes.Admin.Overview)
			})
		})
	})

	return router
}

// Handler возвращает корневой http.Handler сервера.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
