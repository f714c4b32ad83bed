// Пакет server — HTTP-сервер BFF Gateway с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/api/handlers"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/api/middleware"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/config"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/rbac"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/telemetry"
)

// Server — HTTP-сервер BFF Gateway.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// RouterDeps — зависимости маршрутизатора.
type RouterDeps struct {
	Handler        *handlers.APIHandler
	Authenticator  *middleware.Authenticator
	Roles          middleware.RoleSource
	Transport      *middleware.Transport
	AllowedOrigins []string
	Logger         *slog.Logger
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, deps RouterDeps) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// NewRouter собирает таблицу маршрутов.
// Порядок middleware: recover → trace → metrics → log → headers → CORS → CSRF.
func NewRouter(deps RouterDeps) http.Handler {
	h := deps.Handler
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.Recoverer(deps.Logger))
	router.Use(telemetry.HTTPMiddleware("bff-gateway"))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders)
	router.Use(middleware.CORS(deps.AllowedOrigins))
	// В режиме bearer cookie не используются: CSRF не нужен
	if deps.Transport.UsesCookies() {
		router.Use(middleware.CSRF(deps.AllowedOrigins))
	}

	auth := deps.Authenticator.Middleware()
	admin := middleware.RequireRole(deps.Roles, deps.Logger, rbac.RoleAdmin)
	elevated := middleware.RequireRole(deps.Roles, deps.Logger, rbac.RoleAdmin, rbac.RoleSupervisor)

	// Health и metrics проверяются Kubernetes напрямую.
	router.Get("/health", h.Health)
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/auth", func(r chi.Router) {
		r.Get("/csrf", h.AuthCSRF)
		r.Post("/login", h.AuthLogin)
		r.Post("/register", h.AuthRegister)
		r.Post("/refresh", h.AuthRefresh)
		r.Post("/logout", h.AuthLogout)
		r.Post("/password-recovery/request", h.AuthPasswordRecovery)
		r.With(auth).Get("/me", h.AuthMe)
	})

	router.Group(func(r chi.Router) {
		r.Use(auth)

		r.Get("/users/me", h.GetMyProfile)
		r.With(elevated).Get("/users", h.ListProfiles)
		r.With(elevated).Patch("/users/{id}", h.UpdateProfile)

		r.With(admin).Post("/roles/assign", h.AssignRole)
		r.With(admin).Post("/roles/revoke", h.RevokeRole)
		r.Get("/roles/{userId}", h.ListRoles)

		r.Post("/sessions/register", h.RegisterSession)
		r.Post("/sessions/revoke", h.RevokeSession)
		r.Get("/sessions/me", h.ListSessions)

		r.Route("/sheets", func(r chi.Router) {
			r.Post("/tasks/list", h.ListTasks)
			r.With(elevated).Post("/tasks/set-multiple", h.SetTasks)
			r.With(elevated).Post("/tasks/delete-multiple", h.DeleteTasks)

			r.With(elevated).Post("/vacations/list-all", h.ListAllVacations)
			r.Post("/vacations/list-user", h.ListUserVacations)
			r.Post("/vacations/list-team", h.ListTeamVacations)
			r.Post("/vacations/set", h.SetVacation)
			r.With(elevated).Post("/vacations/delete", h.DeleteVacation)

			r.Post("/absences/create", h.CreateAbsence)
			r.Post("/absences/list-user", h.ListUserAbsences)
			r.Post("/absences/cases", h.AbsenceCases)
			r.With(elevated).Post("/absences/calendar", h.AbsenceCalendar)
			r.With(elevated).Post("/absences/delete", h.DeleteAbsence)
		})

		r.With(elevated).Post("/logs/query", h.QueryLogs)

		r.Route("/allowlist", func(r chi.Router) {
			r.Use(admin)
			r.Post("/get", h.GetAllowlistEntry)
			r.Post("/list", h.ListAllowlist)
			r.Post("/upsert", h.UpsertAllowlist)
			r.Post("/disable", h.DisableAllowlist)
		})
	})

	return router
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
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

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
