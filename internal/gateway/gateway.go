// Пакет gateway — шлюз действий Apps Script.
// Проверяет действие по закрытому списку, выбирает таймаут и политику повтора,
// превращает неуспешный результат в 502 с кодом и сообщением upstream.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/appscript"
)

// defaultTimeout — таймаут вызова, если в конфигурации не задан положительный.
const defaultTimeout = 10 * time.Second

// CodeActionNotAllowed — действие отсутствует в закрытом списке.
const CodeActionNotAllowed = "ACTION_NOT_ALLOWED"

var (
	// upstreamCallsTotal — количество вызовов Apps Script по действию и исходу.
	upstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bff_upstream_calls_total",
			Help: "Количество вызовов Apps Script",
		},
		[]string{"action", "result"},
	)

	// upstreamCallDuration — длительность вызова, включая повтор.
	upstreamCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bff_upstream_call_duration_seconds",
			Help:    "Длительность вызовов Apps Script в секундах",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"action"},
	)
)

// Upstream — RPC-клиент Apps Script.
type Upstream interface {
	Call(ctx context.Context, action string, payload any, opts appscript.CallOptions) appscript.Result
}

// Gateway — шлюз разрешённых действий.
type Gateway struct {
	upstream Upstream
	timeout  time.Duration
	logger   *slog.Logger
}

// New создаёт шлюз. timeout <= 0 заменяется на 10s.
func New(upstream Upstream, timeout time.Duration, logger *slog.Logger) *Gateway {
	return &Gateway{
		upstream: upstream,
		timeout:  ResolveTimeout(timeout),
		logger:   logger.With(slog.String("component", "gateway")),
	}
}

// ResolveTimeout возвращает таймаут вызова: d, если он положительный, иначе 10s.
func ResolveTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}

// Call выполняет разрешённое действие и возвращает поле data ответа.
// Неизвестное действие — 400 ACTION_NOT_ALLOWED без сетевого вызова.
// Любой неуспешный исход (сеть, HTTP, формат, бизнес-ошибка) — 502.
func (g *Gateway) Call(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	spec, ok := Lookup(action)
	if !ok {
		g.logger.Warn("Действие не разрешено", slog.String("action", action))
		return nil, apierrors.BadRequestCode(CodeActionNotAllowed, "Action not allowed")
	}

	start := time.Now()
	res := g.upstream.Call(ctx, action, payload, appscript.CallOptions{
		Timeout: g.timeout,
		Retry:   spec.Retry,
	})
	elapsed := time.Since(start)
	upstreamCallDuration.WithLabelValues(action).Observe(elapsed.Seconds())

	if res.OK {
		upstreamCallsTotal.WithLabelValues(action, "ok").Inc()
		g.logger.Info("Вызов Apps Script",
			slog.String("action", action),
			slog.Bool("ok", true),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		)
		return res.Data, nil
	}

	code := res.Code
	if code == "" {
		code = appscript.CodeAppscriptError
	}
	message := res.Message
	if message == "" {
		message = "Apps Script error"
	}

	upstreamCallsTotal.WithLabelValues(action, "error").Inc()
	g.logger.Warn("Вызов Apps Script",
		slog.String("action", action),
		slog.Bool("ok", false),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
		slog.String("code", code),
	)
	return nil, apierrors.BadGateway(code, message)
}

// Caller — любой исполнитель действий с сигнатурой Gateway.Call.
type Caller interface {
	Call(ctx context.Context, action string, payload any) (json.RawMessage, error)
}

// CallInto выполняет действие и декодирует data в T.
// data, не соответствующее T, считается некорректным ответом upstream.
func CallInto[T any](ctx context.Context, c Caller, action string, payload any) (T, error) {
	var out T
	data, err := c.Call(ctx, action, payload)
	if err != nil {
		return out, err
	}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, apierrors.BadGateway(appscript.CodeInvalidResponse, "Apps Script returned unexpected data")
	}
	return out, nil
}
