// client.go — HTTP-клиент к REST API GoTrue (Supabase Auth).
// Публичные операции (login, refresh, getUser, recover) выполняются с anon-ключом,
// административные (создание и удаление пользователя) — с service-role ключом.
// Каждый запрос несёт заголовок apikey.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxErrorBody — сколько байт тела ошибки читается для разбора.
const maxErrorBody = 64 << 10

// Config — параметры клиента.
type Config struct {
	// BaseURL — базовый URL IdP без trailing slash
	BaseURL        string
	AnonKey        string
	ServiceRoleKey string
	// HTTPClient — может содержать трейсинг-транспорт (nil — клиент с таймаутом 10s)
	HTTPClient *http.Client
}

// Client — HTTP-клиент к GoTrue.
type Client struct {
	baseURL        string
	anonKey        string
	serviceRoleKey string

	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент к IdP.
func New(cfg Config, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		anonKey:        cfg.AnonKey,
		serviceRoleKey: cfg.ServiceRoleKey,
		httpClient:     httpClient,
		logger:         logger.With(slog.String("component", "idp_client")),
	}
}

// --- HTTP helpers ---

// do выполняет запрос к IdP. key — ключ для apikey, bearer — токен для
// Authorization (пусто — используется key).
func (c *Client) do(ctx context.Context, method, path, key, bearer string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	if bearer == "" {
		bearer = key
	}
	req.Header.Set("apikey", key)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	return resp, nil
}

// decodeResponse декодирует JSON ответ в target или разбирает ошибку IdP.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("%w: декодирование ответа: %v", ErrUnavailable, err)
		}
	}

	return nil
}

// parseError строит *Error из ответа с неуспешным статусом.
func parseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	e := &Error{Status: resp.StatusCode}
	var body errorResponse
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.ErrorCode != "" || body.Msg != "":
			e.Code = body.ErrorCode
			e.Message = body.Msg
		case body.Error != "" || body.ErrorDescription != "":
			e.Code = body.Error
			e.Message = body.ErrorDescription
		}
		if e.Message == "" {
			e.Message = body.Message
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// --- Auth API ---

// Login выполняет вход по email и паролю.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.tokenGrant(ctx, "password", passwordGrantRequest{Email: email, Password: password})
}

// Refresh обменивает refresh token на новую сессию.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return c.tokenGrant(ctx, "refresh_token", refreshGrantRequest{RefreshToken: refreshToken})
}

// tokenGrant — POST /auth/v1/token?grant_type=...
func (c *Client) tokenGrant(ctx context.Context, grantType string, body any) (*Session, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type="+grantType, c.anonKey, "", body)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := decodeResponse(resp, &session); err != nil {
		return nil, fmt.Errorf("token grant %s: %w", grantType, err)
	}
	if session.AccessToken == "" || session.User == nil {
		return nil, &Error{Status: http.StatusUnauthorized, Message: "Invalid session response from identity provider"}
	}

	return &session, nil
}

// GetUser проверяет access token и возвращает его владельца.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/v1/user", c.anonKey, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := decodeResponse(resp, &user); err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}
	if user.ID == uuid.Nil {
		return nil, &Error{Status: http.StatusUnauthorized, Message: "Invalid token"}
	}

	return &user, nil
}

// CreateUser создаёт пользователя с подтверждённым email (admin API).
func (c *Client) CreateUser(ctx context.Context, email, password string) (*User, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/admin/users", c.serviceRoleKey, "",
		createUserRequest{Email: email, Password: password, EmailConfirm: true})
	if err != nil {
		return nil, err
	}

	var user User
	if err := decodeResponse(resp, &user); err != nil {
		return nil, fmt.Errorf("CreateUser: %w", err)
	}
	if user.ID == uuid.Nil {
		return nil, fmt.Errorf("CreateUser: %w: пустой id пользователя", ErrUnavailable)
	}

	c.logger.Info("Пользователь создан в IdP", slog.String("user_id", user.ID.String()))
	return &user, nil
}

// DeleteUser удаляет пользователя (admin API).
func (c *Client) DeleteUser(ctx context.Context, id uuid.UUID) error {
	resp, err := c.do(ctx, http.MethodDelete, "/auth/v1/admin/users/"+id.String(), c.serviceRoleKey, "", nil)
	if err != nil {
		return err
	}
	if err := decodeResponse(resp, nil); err != nil {
		return fmt.Errorf("DeleteUser: %w", err)
	}

	c.logger.Info("Пользователь удалён из IdP", slog.String("user_id", id.String()))
	return nil
}

// SendPasswordRecovery отправляет письмо восстановления пароля.
// redirectURL — пусто, если не настроен.
func (c *Client) SendPasswordRecovery(ctx context.Context, email, redirectURL string) error {
	path := "/auth/v1/recover"
	if redirectURL != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectURL)
	}

	resp, err := c.do(ctx, http.MethodPost, path, c.anonKey, "", recoverRequest{Email: email})
	if err != nil {
		return err
	}
	if err := decodeResponse(resp, nil); err != nil {
		return fmt.Errorf("SendPasswordRecovery: %w", err)
	}
	return nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность IdP через /auth/v1/health.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/auth/v1/health", c.anonKey, "", nil)
	if err != nil {
		return "fail", fmt.Sprintf("IdP недоступен: %v", err)
	}
	if err := decodeResponse(resp, nil); err != nil {
		var e *Error
		if errors.As(err, &e) && e.Status < 500 {
			return "degraded", fmt.Sprintf("IdP вернул статус %d", e.Status)
		}
		return "fail", fmt.Sprintf("IdP недоступен: %v", err)
	}

	return "ok", "IdP доступен"
}
