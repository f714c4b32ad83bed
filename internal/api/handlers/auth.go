// auth.go — обработчики /auth/*: CSRF, вход, регистрация, обновление сессии,
// выход, восстановление пароля и текущий пользователь.
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/api/middleware"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/service"
)

// minPasswordLength — минимальная длина пароля при регистрации.
const minPasswordLength = 6

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest — тело /auth/refresh в режиме bearer.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type passwordRecoveryRequest struct {
	Email string `json:"email"`
}

// sessionTokens — токены в теле ответа (только режим bearer).
type sessionTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// authResponse — ответ входа, обновления сессии и /auth/me.
type authResponse struct {
	OK        bool             `json:"ok"`
	User      service.UserInfo `json:"user"`
	Profile   *model.Profile   `json:"profile"`
	Roles     []string         `json:"roles"`
	CSRFToken string           `json:"csrf_token"`
	Session   *sessionTokens   `json:"session,omitempty"`
}

type csrfResponse struct {
	OK        bool   `json:"ok"`
	CSRFToken string `json:"csrf_token"`
}

type registerResponse struct {
	OK bool `json:"ok"`
	*service.RegisterResult
}

// AuthCSRF — GET /auth/csrf. Всегда выпускает новый CSRF-токен.
func (h *APIHandler) AuthCSRF(w http.ResponseWriter, r *http.Request) {
	middleware.NoStore(w)
	token, err := h.transport.IssueCSRF(w, true)
	if err != nil {
		h.fail(w, r, fmt.Errorf("выпуск CSRF-токена: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, csrfResponse{OK: true, CSRFToken: token})
}

// AuthLogin — POST /auth/login.
func (h *APIHandler) AuthLogin(w http.ResponseWriter, r *http.Request) {
	middleware.NoStore(w)

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := requireEmail(req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Password == "" {
		h.fail(w, r, apierrors.BadRequest("password is required"))
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeSession(w, r, result)
}

// AuthRefresh — POST /auth/refresh. Refresh token из cookie,
// в режиме bearer — из тела запроса.
func (h *APIHandler) AuthRefresh(w http.ResponseWriter, r *http.Request) {
	middleware.NoStore(w)

	var req refreshRequest
	if !h.transport.UsesCookies() {
		if err := decodeJSON(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	token := h.transport.RefreshToken(r, req.RefreshToken)
	if token == "" {
		h.fail(w, r, apierrors.Unauthorized(service.MsgMissingRefreshToken))
		return
	}

	result, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeSession(w, r, result)
}

// writeSession устанавливает cookies сессии (или возвращает токены в теле)
// и отвечает данными пользователя.
func (h *APIHandler) writeSession(w http.ResponseWriter, r *http.Request, result *service.AuthResult) {
	s := result.Session
	h.transport.SetSession(w, s.AccessToken, s.ExpiresIn, s.RefreshToken)

	csrf, err := h.transport.EnsureCSRF(w, r, true)
	if err != nil {
		h.fail(w, r, fmt.Errorf("выпуск CSRF-токена: %w", err))
		return
	}

	resp := authResponse{
		OK:        true,
		User:      result.User,
		Profile:   result.Profile,
		Roles:     result.Roles,
		CSRFToken: csrf,
	}
	if !h.transport.UsesCookies() {
		resp.Session = &sessionTokens{
			AccessToken:  s.AccessToken,
			RefreshToken: s.RefreshToken,
			ExpiresIn:    s.ExpiresIn,
			TokenType:    s.TokenType,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// AuthLogout — POST /auth/logout.
func (h *APIHandler) AuthLogout(w http.ResponseWriter, _ *http.Request) {
	middleware.NoStore(w)
	h.transport.Clear(w)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// AuthMe — GET /auth/me. CSRF cookie выпускается на сессию браузера, если её нет.
func (h *APIHandler) AuthMe(w http.ResponseWriter, r *http.Request) {
	middleware.NoStore(w)

	c, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	csrf, err := h.transport.EnsureCSRF(w, r, false)
	if err != nil {
		h.fail(w, r, fmt.Errorf("выпуск CSRF-токена: %w", err))
		return
	}

	result, err := h.auth.Me(r.Context(), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		OK:        true,
		User:      result.User,
		Profile:   result.Profile,
		Roles:     result.Roles,
		CSRFToken: csrf,
	})
}

// AuthRegister — POST /auth/register.
// С credential вызывающего регистрирует admin; без него — только первый
// пользователь системы (bootstrap).
func (h *APIHandler) AuthRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validateRegister(&req); err != nil {
		h.fail(w, r, err)
		return
	}

	var c *model.Caller
	if token := h.transport.AccessToken(r); token != "" {
		var err error
		if c, err = h.authn.Authenticate(r.Context(), token); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	result, err := h.auth.Register(r.Context(), c, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{OK: true, RegisterResult: result})
}

func validateRegister(req *service.RegisterInput) error {
	if err := requireEmail(req.Email); err != nil {
		return err
	}
	if len(req.Password) < minPasswordLength {
		return apierrors.BadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return apierrors.BadRequest("name is required")
	}
	return nil
}

// AuthPasswordRecovery — POST /auth/password-recovery/request.
// Ответ не раскрывает, существует ли адрес.
func (h *APIHandler) AuthPasswordRecovery(w http.ResponseWriter, r *http.Request) {
	var req passwordRecoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := requireEmail(req.Email); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.auth.RequestPasswordRecovery(r.Context(), req.Email, requestMeta(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
