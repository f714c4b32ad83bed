package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCSRF(t *testing.T) {
	const origin = "https://app.staffdesk.lan"

	tests := []struct {
		name     string
		method   string
		origin   string
		referer  string
		cookie   string
		header   string
		wantCode string
		wantMsg  string
	}{
		{name: "GET без проверки", method: http.MethodGet},
		{name: "OPTIONS без проверки", method: http.MethodOptions},
		{
			name: "валидный запрос", method: http.MethodPost,
			origin: origin, cookie: "tok", header: "tok",
		},
		{
			name: "origin из Referer", method: http.MethodPost,
			referer: origin + "/tasks?x=1", cookie: "tok", header: "tok",
		},
		{
			name: "нет Origin и Referer", method: http.MethodPost,
			cookie: "tok", header: "tok",
			wantCode: CodeCSRFOriginMissing, wantMsg: "Missing Origin/Referer",
		},
		{
			name: "некорректный Referer", method: http.MethodPost,
			referer: "not a url", cookie: "tok", header: "tok",
			wantCode: CodeCSRFOriginMissing, wantMsg: "Missing Origin/Referer",
		},
		{
			name: "чужой origin", method: http.MethodPatch,
			origin: "https://evil.example", cookie: "tok", header: "tok",
			wantCode: CodeCSRFOriginForbidden, wantMsg: "Invalid Origin/Referer",
		},
		{
			name: "нет cookie", method: http.MethodPost,
			origin: origin, header: "tok",
			wantCode: CodeCSRFTokenMissing, wantMsg: "Missing CSRF cookie",
		},
		{
			name: "нет заголовка", method: http.MethodPost,
			origin: origin, cookie: "tok",
			wantCode: CodeCSRFTokenMissing, wantMsg: "Missing CSRF header",
		},
		{
			name: "токены не совпадают", method: http.MethodDelete,
			origin: origin, cookie: "tok", header: "tok2",
			wantCode: CodeCSRFTokenInvalid, wantMsg: "Invalid CSRF token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CSRF([]string{origin})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/sheets/tasks/list", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieCSRF, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("x-csrf-token", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if tt.wantCode == "" {
				if rec.Code != http.StatusOK {
					t.Fatalf("status = %d, ожидается 200", rec.Code)
				}
				return
			}
			if rec.Code != http.StatusForbidden {
				t.Fatalf("status = %d, ожидается 403", rec.Code)
			}
			code, msg := errorCode(t, rec)
			if code != tt.wantCode || msg != tt.wantMsg {
				t.Errorf("error = %s %q, ожидается %s %q", code, msg, tt.wantCode, tt.wantMsg)
			}
		})
	}
}
