package middleware

import (
	"crypto/subtle"
	"net/http"
	"net/url"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
)

// Коды отказа CSRF-проверки.
const (
	CodeCSRFOriginMissing   = "CSRF_ORIGIN_MISSING"
	CodeCSRFOriginForbidden = "CSRF_ORIGIN_FORBIDDEN"
	CodeCSRFTokenMissing    = "CSRF_TOKEN_MISSING"
	CodeCSRFTokenInvalid    = "CSRF_TOKEN_INVALID"
)

// CSRF возвращает middleware double-submit проверки для небезопасных методов:
// Origin (или origin из Referer) из списка разрешённых,
// cookie csrf_token совпадает с заголовком x-csrf-token.
func CSRF(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := requestOrigin(r)
			if origin == "" {
				apierrors.WriteError(w, http.StatusForbidden, CodeCSRFOriginMissing, "Missing Origin/Referer")
				return
			}
			if _, ok := allowed[origin]; !ok {
				apierrors.WriteError(w, http.StatusForbidden, CodeCSRFOriginForbidden, "Invalid Origin/Referer")
				return
			}

			cookie := cookieValue(r, CookieCSRF)
			if cookie == "" {
				apierrors.WriteError(w, http.StatusForbidden, CodeCSRFTokenMissing, "Missing CSRF cookie")
				return
			}
			header := r.Header.Get(HeaderCSRF)
			if header == "" {
				apierrors.WriteError(w, http.StatusForbidden, CodeCSRFTokenMissing, "Missing CSRF header")
				return
			}
			if subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
				apierrors.WriteError(w, http.StatusForbidden, CodeCSRFTokenInvalid, "Invalid CSRF token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// requestOrigin — заголовок Origin, иначе scheme://host из Referer.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	referer := r.Header.Get("Referer")
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
