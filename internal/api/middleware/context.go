package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyCaller — аутентифицированный пользователь в контексте запроса.
const ContextKeyCaller contextKey = "caller"

// WithCaller помещает пользователя в контекст.
func WithCaller(ctx context.Context, caller *model.Caller) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, caller)
}

// CallerFromContext извлекает пользователя из контекста.
// Возвращает nil, если запрос не прошёл Authenticator.
func CallerFromContext(ctx context.Context) *model.Caller {
	caller, _ := ctx.Value(ContextKeyCaller).(*model.Caller)
	return caller
}

// ClientIP возвращает адрес клиента: первый элемент X-Forwarded-For,
// иначе host из RemoteAddr. Пустая строка, если определить не удалось.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
