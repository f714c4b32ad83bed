// Точка входа BFF Gateway — шлюза между SPA и бэкендами StaffDesk.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт клиенты IdP и Apps Script, шлюз действий, сервисный слой,
// запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/api/handlers"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/api/middleware"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/appscript"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/config"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/database"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/gateway"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/idp"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/ratelimit"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/repository"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/server"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/service"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/telemetry"
)

// idpHTTPTimeout — таймаут запросов к IdP и загрузки JWKS.
const idpHTTPTimeout = 10 * time.Second

func main() {
	// 0. Локальный .env (в кластере отсутствует — ошибка игнорируется)
	_ = godotenv.Load()

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("BFF Gateway запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("env", cfg.Env),
		slog.String("auth_transport", cfg.AuthTransport),
	)

	if os.Getenv("BFF_DEPHEALTH_GROUP") == "" {
		logger.Warn("BFF_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Sentry (опционально)
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			Release:     config.Version,
		}); err != nil {
			logger.Error("Ошибка инициализации Sentry", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
		logger.Info("Sentry инициализирован")
	}

	// 4. OpenTelemetry
	ctx := context.Background()
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "bff-gateway",
		Version:     config.Version,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
	}, logger)
	if err != nil {
		logger.Error("Ошибка инициализации трассировки", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Ошибка остановки трассировки", slog.String("error", err.Error()))
		}
	}()

	// 5. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 6.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 7. Repositories
	profileRepo := repository.NewProfileRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 8. Клиент IdP и кэш проверки токенов
	idpClient := idp.New(idp.Config{
		BaseURL:        cfg.IDPURL,
		AnonKey:        cfg.IDPAnonKey,
		ServiceRoleKey: cfg.IDPServiceRoleKey,
		HTTPClient:     telemetry.InstrumentClient(idpHTTPTimeout),
	}, logger)
	tokenCache := idp.NewTokenCache(idpClient, cfg.IDPTokenCacheSize, cfg.IDPTokenCacheTTL)
	logger.Info("Клиент IdP создан",
		slog.String("url", cfg.IDPURL),
		slog.String("token_cache_ttl", cfg.IDPTokenCacheTTL.String()),
	)

	// 9. Клиент Apps Script и шлюз действий
	asClient, err := appscript.New(appscript.Config{
		BaseURL:       cfg.AppscriptBaseURL,
		InternalToken: cfg.AppscriptInternalToken,
		CACertPath:    cfg.AppscriptCACertPath,
		WrapTransport: telemetry.WrapTransport,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента Apps Script", slog.String("error", err.Error()))
		os.Exit(1)
	}
	gw := gateway.New(asClient, cfg.AppscriptTimeout, logger)

	// 10. Транспорт сессии и аутентификация
	transport := middleware.NewTransport(cfg.AuthTransport, cfg.IsProduction())
	authn, err := middleware.NewAuthenticator(tokenCache, transport, middleware.AuthOptions{
		JWTSecret:  cfg.IDPJWTSecret,
		JWKSURL:    cfg.IDPJWKSURL,
		HTTPClient: telemetry.InstrumentClient(idpHTTPTimeout),
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания middleware аутентификации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 11. Services
	authSvc := service.NewAuthService(
		idpClient, profileRepo, roleRepo, txRunner,
		gw, ratelimit.New(time.Now),
		service.AuthLimits{
			LoginPerIP:       cfg.LoginPerIP,
			LoginPerEmail:    cfg.LoginPerEmail,
			LoginWindow:      cfg.LoginWindow,
			RecoveryPerIP:    cfg.RecoveryPerIP,
			RecoveryPerEmail: cfg.RecoveryPerEmail,
			RecoveryWindow:   cfg.RecoveryWindow,
		},
		cfg.ResetPasswordRedirectURL,
		logger,
	)
	usersSvc := service.NewUserService(profileRepo, roleRepo, sessionRepo, logger)
	sheetsSvc := service.NewSheetsService(gw, profileRepo, roleRepo, logger)

	// 12. topologymetrics — мониторинг зависимостей (PostgreSQL + IdP + Apps Script)
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"bff-gateway",
		cfg.DephealthGroup,
		service.DephealthTargets{
			DB:           pgDB,
			PostgresURL:  cfg.DatabaseURL(),
			IDPURL:       cfg.IDPURL,
			AppscriptURL: cfg.AppscriptBaseURL,
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 13. Readiness checkers. Apps Script проверяется только через topologymetrics.
	var appscriptChecker handlers.ReadinessChecker
	if dephealthSvc != nil {
		appscriptChecker = dephealthSvc
	}
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		idpClient,
		appscriptChecker,
	)

	// 14. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		authSvc,
		usersSvc,
		sheetsSvc,
		authn,
		transport,
		logger,
	)

	// 15. Создание и запуск HTTP-сервера
	srv := server.New(cfg, server.RouterDeps{
		Handler:        apiHandler,
		Authenticator:  authn,
		Roles:          roleRepo,
		Transport:      transport,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 16. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("BFF Gateway остановлен")
}
