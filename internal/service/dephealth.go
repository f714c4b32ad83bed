// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// BFF Gateway мониторит три зависимости:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - IdP — HTTP checker к /auth/v1/health (critical)
//   - Apps Script — HTTP checker к URL web app (не critical: без него работают вход и профили)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для IdP и Apps Script
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"
)

// Имена зависимостей в метриках и в Health().
const (
	DepPostgres  = "postgresql"
	DepIDP       = "idp"
	DepAppscript = "appscript"
)

// idpHealthPath — health endpoint GoTrue.
const idpHealthPath = "/auth/v1/health"

// DephealthTargets — адреса зависимостей.
type DephealthTargets struct {
	// DB — *sql.DB из pgxpool через stdlib.OpenDBFromPool(). nil — PostgreSQL не мониторится.
	DB *sql.DB
	// PostgresURL — URL подключения (для лейблов, не для подключения)
	PostgresURL  string
	IDPURL       string
	AppscriptURL string
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	opts := make([]dephealth.Option, 0, 4+len(extraOpts))
	opts = append(opts, dephealth.WithLogger(logger))

	if targets.DB != nil {
		opts = append(opts, dephealth.AddDependency(DepPostgres, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(targets.DB)),
			dephealth.FromURL(targets.PostgresURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		))
	}

	opts = append(opts, dephealth.HTTP(DepIDP, httpDepOptions(targets.IDPURL, idpHealthPath, checkInterval, true)...))

	// Apps Script отвечает на GET по тому же URL, что и на POST.
	appscriptPath := "/"
	if parsed, err := url.Parse(targets.AppscriptURL); err == nil && parsed.Path != "" {
		appscriptPath = parsed.Path
	}
	opts = append(opts, dephealth.HTTP(DepAppscript, httpDepOptions(targets.AppscriptURL, appscriptPath, checkInterval, false)...))

	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

func httpDepOptions(rawURL, healthPath string, checkInterval time.Duration, critical bool) []dephealth.DependencyOption {
	opts := []dephealth.DependencyOption{
		dephealth.FromURL(rawURL),
		dephealth.WithHTTPHealthPath(healthPath),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(critical),
	}
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Scheme == "https" {
		opts = append(opts, dephealth.WithHTTPTLSSkipVerify(false))
	}
	return opts
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + IdP + Apps Script)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — "dependency:host:port", значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// DependencyHealthy ищет состояние зависимости по имени.
// known=false — проверка ещё не выполнялась.
func (ds *DephealthService) DependencyHealthy(name string) (healthy, known bool) {
	return healthByPrefix(ds.Health(), name)
}

// CheckReady сообщает состояние Apps Script для readiness probe.
// Недоступный Apps Script даёт degraded, а не fail.
func (ds *DephealthService) CheckReady() (string, string) {
	healthy, known := ds.DependencyHealthy(DepAppscript)
	switch {
	case !known:
		return "ok", "Apps Script ещё не проверялся"
	case healthy:
		return "ok", "Apps Script доступен"
	default:
		return "degraded", "Apps Script недоступен"
	}
}

// healthByPrefix: Health() из topologymetrics SDK возвращает ключи формата
// "dependency:host:port". Если записей несколько, healthy только если все ok.
func healthByPrefix(health map[string]bool, prefix string) (healthy, known bool) {
	healthy = true
	for key, ok := range health {
		if strings.HasPrefix(key, prefix+":") || key == prefix {
			known = true
			healthy = healthy && ok
		}
	}
	return healthy && known, known
}
