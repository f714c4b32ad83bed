package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	sentryhttp "github.com/getsentry/sentry-go/http"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
)

// Recoverer перехватывает panic в обработчике: логирует с методом и путём,
// отправляет в Sentry (если клиент инициализирован) и отвечает 500.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	// Repanic — panic после отправки в Sentry ловит внешний recover ниже
	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})

	return func(next http.Handler) http.Handler {
		traced := sentryHandler.Handle(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("Panic в обработчике",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("stack", string(debug.Stack())),
				)
				apierrors.WriteError(w, http.StatusInternalServerError, apierrors.CodeInternal, "")
			}()

			traced.ServeHTTP(w, r)
		})
	}
}
