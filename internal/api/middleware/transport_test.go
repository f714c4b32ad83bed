package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestTransport_SetSession(t *testing.T) {
	tr := NewTransport(ModeCookie, true)
	rec := httptest.NewRecorder()
	tr.SetSession(rec, "access", 3600, "refresh")

	access := findCookie(rec, CookieAccessToken)
	if access == nil || access.Value != "access" {
		t.Fatalf("access cookie = %+v", access)
	}
	if !access.HttpOnly || !access.Secure || access.SameSite != http.SameSiteLaxMode || access.Path != "/" {
		t.Errorf("атрибуты access cookie = %+v", access)
	}
	if access.MaxAge != 3600 {
		t.Errorf("access MaxAge = %d, ожидается 3600", access.MaxAge)
	}

	refresh := findCookie(rec, CookieRefreshToken)
	if refresh == nil || refresh.MaxAge != 30*24*3600 || !refresh.HttpOnly {
		t.Errorf("refresh cookie = %+v", refresh)
	}
}

func TestTransport_SetSessionWithoutRefresh(t *testing.T) {
	tr := NewTransport(ModeCookie, false)
	rec := httptest.NewRecorder()
	tr.SetSession(rec, "access", 0, "")

	access := findCookie(rec, CookieAccessToken)
	if access == nil || access.MaxAge != 0 || access.Secure {
		t.Errorf("access cookie = %+v, ожидается сессионная без Secure", access)
	}
	if findCookie(rec, CookieRefreshToken) != nil {
		t.Error("refresh cookie не должен устанавливаться")
	}
}

func TestTransport_BearerSetsNoCookies(t *testing.T) {
	tr := NewTransport(ModeBearer, true)
	rec := httptest.NewRecorder()
	tr.SetSession(rec, "access", 3600, "refresh")
	token, err := tr.EnsureCSRF(rec, httptest.NewRequest(http.MethodGet, "/", nil), true)
	if err != nil {
		t.Fatalf("EnsureCSRF() ошибка: %v", err)
	}
	if token != "" {
		t.Errorf("csrf token = %q, ожидается пусто", token)
	}
	if n := len(rec.Result().Cookies()); n != 0 {
		t.Errorf("установлено %d cookies, ожидается 0", n)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	if got := tr.RefreshToken(req, " body-token "); got != "body-token" {
		t.Errorf("RefreshToken() = %q, ожидается body-token", got)
	}
}

func TestTransport_EnsureCSRF(t *testing.T) {
	tr := NewTransport(ModeCookie, false)

	// Существующий cookie переиспользуется
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieCSRF, Value: "existing"})
	rec := httptest.NewRecorder()
	token, err := tr.EnsureCSRF(rec, req, false)
	if err != nil || token != "existing" {
		t.Fatalf("EnsureCSRF() = %q, %v", token, err)
	}
	if findCookie(rec, CookieCSRF) != nil {
		t.Error("cookie не должен перевыпускаться")
	}

	// Новый токен: сессионный cookie, доступный JS
	rec = httptest.NewRecorder()
	token, err = tr.EnsureCSRF(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil), false)
	if err != nil {
		t.Fatalf("EnsureCSRF() ошибка: %v", err)
	}
	c := findCookie(rec, CookieCSRF)
	if c == nil || c.Value != token || c.HttpOnly || c.MaxAge != 0 {
		t.Errorf("csrf cookie = %+v", c)
	}

	// persistent — 30 дней
	rec = httptest.NewRecorder()
	if _, err := tr.IssueCSRF(rec, true); err != nil {
		t.Fatalf("IssueCSRF() ошибка: %v", err)
	}
	if c := findCookie(rec, CookieCSRF); c == nil || c.MaxAge != 30*24*3600 {
		t.Errorf("csrf cookie = %+v, ожидается MaxAge 30 дней", c)
	}
}

func TestTransport_Clear(t *testing.T) {
	tr := NewTransport(ModeCookie, false)
	rec := httptest.NewRecorder()
	tr.Clear(rec)

	for _, name := range []string{CookieAccessToken, CookieRefreshToken, CookieCSRF} {
		c := findCookie(rec, name)
		if c == nil || c.MaxAge != -1 || c.Value != "" {
			t.Errorf("cookie %s = %+v, ожидается удаление", name, c)
		}
	}
}

func TestNewCSRFToken(t *testing.T) {
	a, err := NewCSRFToken()
	if err != nil {
		t.Fatalf("NewCSRFToken() ошибка: %v", err)
	}
	b, _ := NewCSRFToken()
	// 32 байта в base64url без padding — 43 символа
	if len(a) != 43 {
		t.Errorf("len = %d, ожидается 43", len(a))
	}
	if a == b {
		t.Error("токены совпадают")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"X-Forwarded-For", "203.0.113.7, 10.0.0.1", "10.0.0.1:5000", "203.0.113.7"},
		{"RemoteAddr", "", "192.0.2.10:41234", "192.0.2.10"},
		{"пустой XFF", " , ", "192.0.2.10:41234", "192.0.2.10"},
		{"RemoteAddr без порта", "", "192.0.2.10", "192.0.2.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, ожидается %q", got, tt.want)
			}
		})
	}
}
