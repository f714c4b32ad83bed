// transport.go — доставка credentials между клиентом и BFF.
// Режим cookie: токены в HttpOnly cookies, CSRF double-submit.
// Режим bearer: access token в заголовке Authorization, cookies не ставятся.
package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

// Имена cookies и заголовков.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
	CookieCSRF         = "csrf_token"
	HeaderCSRF         = "X-Csrf-Token"
)

// Режимы доставки credentials.
const (
	ModeCookie = "cookie"
	ModeBearer = "bearer"
)

// persistentMaxAge — срок жизни refresh и CSRF cookies.
const persistentMaxAge = 30 * 24 * time.Hour

// Transport — выбранная для развёртывания стратегия доставки credentials.
type Transport struct {
	mode   string
	secure bool
}

// NewTransport создаёт стратегию. secure — флаг Secure для cookies (production).
// Неизвестный режим трактуется как cookie.
func NewTransport(mode string, secure bool) *Transport {
	if mode != ModeBearer {
		mode = ModeCookie
	}
	return &Transport{mode: mode, secure: secure}
}

// UsesCookies — credentials передаются через cookies.
func (t *Transport) UsesCookies() bool {
	return t.mode == ModeCookie
}

// Mode возвращает режим доставки.
func (t *Transport) Mode() string {
	return t.mode
}

// AccessToken извлекает access token из запроса.
func (t *Transport) AccessToken(r *http.Request) string {
	if t.UsesCookies() {
		return cookieValue(r, CookieAccessToken)
	}
	return bearerToken(r)
}

// RefreshToken извлекает refresh token: из cookie или, в режиме bearer,
// из значения, переданного в теле запроса.
func (t *Transport) RefreshToken(r *http.Request, fromBody string) string {
	if t.UsesCookies() {
		return cookieValue(r, CookieRefreshToken)
	}
	return strings.TrimSpace(fromBody)
}

// SetSession устанавливает cookies access и refresh токенов.
// expiresIn <= 0 — access cookie без Max-Age (сессионная).
// В режиме bearer ничего не делает.
func (t *Transport) SetSession(w http.ResponseWriter, accessToken string, expiresIn int, refreshToken string) {
	if !t.UsesCookies() {
		return
	}
	var accessMaxAge time.Duration
	if expiresIn > 0 {
		accessMaxAge = time.Duration(expiresIn) * time.Second
	}
	http.SetCookie(w, t.cookie(CookieAccessToken, accessToken, accessMaxAge, true))
	if refreshToken != "" {
		http.SetCookie(w, t.cookie(CookieRefreshToken, refreshToken, persistentMaxAge, true))
	}
}

// EnsureCSRF возвращает CSRF-токен из cookie запроса или выпускает новый
// и устанавливает cookie. persistent — cookie на 30 дней, иначе сессионная.
// В режиме bearer возвращает пустую строку.
func (t *Transport) EnsureCSRF(w http.ResponseWriter, r *http.Request, persistent bool) (string, error) {
	if !t.UsesCookies() {
		return "", nil
	}
	if existing := cookieValue(r, CookieCSRF); existing != "" {
		return existing, nil
	}
	return t.IssueCSRF(w, persistent)
}

// IssueCSRF всегда выпускает новый CSRF-токен.
func (t *Transport) IssueCSRF(w http.ResponseWriter, persistent bool) (string, error) {
	token, err := NewCSRFToken()
	if err != nil {
		return "", err
	}
	var maxAge time.Duration
	if persistent {
		maxAge = persistentMaxAge
	}
	http.SetCookie(w, t.cookie(CookieCSRF, token, maxAge, false))
	return token, nil
}

// Clear удаляет все cookies сессии.
func (t *Transport) Clear(w http.ResponseWriter) {
	for _, name := range []string{CookieAccessToken, CookieRefreshToken, CookieCSRF} {
		c := t.cookie(name, "", 0, name != CookieCSRF)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (t *Transport) cookie(name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: httpOnly,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCSRFToken генерирует 32 случайных байта в base64url без padding.
func NewCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NoStore запрещает кэширование ответа.
func NoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
