// Пакет telemetry — трассировка OpenTelemetry: провайдер трейсов,
// входящий HTTP middleware и обёртка исходящих транспортов.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// exportTimeout — таймаут отправки батча в коллектор.
const exportTimeout = 5 * time.Second

// Config — параметры трассировки.
type Config struct {
	ServiceName string
	Version     string
	// Endpoint — host:port OTLP/HTTP коллектора. Пусто — экспорт отключён.
	Endpoint string
	Insecure bool
}

// Init настраивает глобальный TracerProvider и propagator.
// Без Endpoint провайдер создаётся без экспортёра: контекст трассировки
// распространяется, но спаны никуда не отправляются.
// Возвращает функцию остановки провайдера.
func Init(ctx context.Context, cfg Config, logger *slog.Logger) (func(context.Context) error, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "bff-gateway"
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания ресурса OTel: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint != "" {
		exporterOpts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithTimeout(exportTimeout),
		}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания OTLP экспортёра: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	logger.Info("Трассировка инициализирована",
		slog.String("service", name),
		slog.Bool("export_enabled", endpoint != ""),
	)
	return tp.Shutdown, nil
}

// HTTPMiddleware оборачивает входящие запросы в спаны.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return otelhttp.NewMiddleware(serviceName)
}

// WrapTransport добавляет к исходящему транспорту спаны и propagation.
// nil заменяется на http.DefaultTransport.
func WrapTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base)
}

// InstrumentClient создаёт HTTP-клиент с инструментированным транспортом.
func InstrumentClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: WrapTransport(nil),
	}
}
