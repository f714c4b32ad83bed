// handler.go — основной обработчик API BFF Gateway.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/api/middleware"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/service"
)

// maxBodySize — ограничение тела JSON-запроса.
const maxBodySize = 1 << 20

// AuthService — вход, регистрация и восстановление пароля.
type AuthService interface {
	Login(ctx context.Context, email, password string, meta service.RequestMeta) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	Me(ctx context.Context, caller *model.Caller) (*service.AuthResult, error)
	Register(ctx context.Context, caller *model.Caller, in service.RegisterInput) (*service.RegisterResult, error)
	RequestPasswordRecovery(ctx context.Context, email string, meta service.RequestMeta) error
}

// UserService — профили, роли и сессии.
type UserService interface {
	Profile(ctx context.Context, caller *model.Caller) (*model.Profile, error)
	ListProfiles(ctx context.Context) ([]*model.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.Profile, error)
	AssignRole(ctx context.Context, userID uuid.UUID, role string) error
	RevokeRole(ctx context.Context, userID uuid.UUID, role string) error
	Roles(ctx context.Context, caller *model.Caller, userID uuid.UUID) ([]string, error)
	RegisterSession(ctx context.Context, caller *model.Caller, meta service.RequestMeta) (*model.Session, error)
	RevokeSession(ctx context.Context, caller *model.Caller, sessionID uuid.UUID) error
	Sessions(ctx context.Context, caller *model.Caller) ([]*model.Session, error)
}

// SheetsService — данные Apps Script.
type SheetsService interface {
	ListTasks(ctx context.Context, caller *model.Caller) ([]json.RawMessage, error)
	SetTasks(ctx context.Context, caller *model.Caller, in service.TasksSetInput, meta service.RequestMeta) (json.RawMessage, error)
	DeleteTasks(ctx context.Context, caller *model.Caller, in service.TasksDeleteInput, meta service.RequestMeta) (json.RawMessage, error)

	ListAllVacations(ctx context.Context) (json.RawMessage, error)
	ListUserVacations(ctx context.Context, caller *model.Caller, t service.Target) (json.RawMessage, error)
	ListTeamVacations(ctx context.Context, caller *model.Caller, t service.Target) (json.RawMessage, error)
	SetVacation(ctx context.Context, caller *model.Caller, in service.VacationsSetInput, meta service.RequestMeta) (*service.WriteResult, error)
	DeleteVacation(ctx context.Context, caller *model.Caller, in service.VacationsDeleteInput, meta service.RequestMeta) (*service.WriteResult, error)

	CreateAbsence(ctx context.Context, caller *model.Caller, in service.AbsencesCreateInput, meta service.RequestMeta) (*service.WriteResult, error)
	ListUserAbsences(ctx context.Context, caller *model.Caller, t service.Target) (json.RawMessage, error)
	AbsenceCalendar(ctx context.Context) (json.RawMessage, error)
	DeleteAbsence(ctx context.Context, caller *model.Caller, in service.AbsencesDeleteInput, meta service.RequestMeta) (*service.WriteResult, error)
	AbsenceCases(ctx context.Context) (json.RawMessage, error)

	QueryLogs(ctx context.Context, in service.LogsQueryInput) (json.RawMessage, error)

	GetAllowlistEntry(ctx context.Context, email string) (json.RawMessage, error)
	ListAllowlist(ctx context.Context) (json.RawMessage, error)
	UpsertAllowlist(ctx context.Context, caller *model.Caller, in service.AllowlistUpsertInput, meta service.RequestMeta) (*service.WriteResult, error)
	DisableAllowlist(ctx context.Context, caller *model.Caller, email string, meta service.RequestMeta) (*service.WriteResult, error)
}

// TokenAuthenticator — проверка access token вне middleware (регистрация).
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Caller, error)
}

// APIHandler — основной обработчик API BFF Gateway.
type APIHandler struct {
	health    *HealthHandler
	auth      AuthService
	users     UserService
	sheets    SheetsService
	authn     TokenAuthenticator
	transport *middleware.Transport
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	auth AuthService,
	users UserService,
	sheets SheetsService,
	authn TokenAuthenticator,
	transport *middleware.Transport,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:    health,
		auth:      auth,
		users:     users,
		sheets:    sheets,
		authn:     authn,
		transport: transport,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// Health — GET /health.
func (h *APIHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// --- Вспомогательные функции ---

// okResponse — ответ без данных.
type okResponse struct {
	OK bool `json:"ok"`
}

// dataResponse — ответ {ok, data}.
type dataResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data"`
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeData записывает {ok: true, data}.
func writeData(w http.ResponseWriter, data any) {
	if raw, ok := data.(json.RawMessage); ok {
		data = rawOrNull(raw)
	}
	writeJSON(w, http.StatusOK, dataResponse{OK: true, Data: data})
}

// fail передаёт ошибку сервисного слоя в единую точку сериализации.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	apierrors.Write(w, r, h.logger, err)
}

// decodeJSON разбирает тело запроса в dst. Пустое тело — пустой объект.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apierrors.BadRequest("Request body too large")
		}
		return apierrors.BadRequest("Invalid JSON body: " + err.Error())
	}
	return nil
}

// requestMeta собирает адрес и User-Agent клиента для аудита.
func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// caller возвращает аутентифицированного пользователя.
// Маршрут без Authenticator — ошибка конфигурации роутера.
func caller(r *http.Request) (*model.Caller, error) {
	c := middleware.CallerFromContext(r.Context())
	if c == nil {
		return nil, apierrors.Unauthorized("Missing authenticated user")
	}
	return c, nil
}

// validEmail — адрес в форме local@domain без отображаемого имени.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == strings.TrimSpace(s) && strings.Contains(addr.Address, "@")
}

// requireEmail проверяет поле email.
func requireEmail(email string) error {
	if !validEmail(email) {
		return apierrors.BadRequest("email must be a valid email address")
	}
	return nil
}
