// auth.go — вход, регистрация, обновление сессии и восстановление пароля.
// IdP хранит учётные записи, BFF хранит профили и роли.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/rbac"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/gateway"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/idp"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/ratelimit"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/repository"
)

// Результаты запроса восстановления пароля в журнале аудита.
const (
	RecoveryResultOK    = "OK"
	RecoveryResultError = "ERROR"
)

// IdentityProvider — операции IdP, нужные сервису (*idp.Client).
type IdentityProvider interface {
	Login(ctx context.Context, email, password string) (*idp.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*idp.Session, error)
	CreateUser(ctx context.Context, email, password string) (*idp.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	SendPasswordRecovery(ctx context.Context, email, redirectURL string) error
}

// AccountsTx — транзакция над профилями и ролями (*repository.TxRunner).
type AccountsTx interface {
	RunAccountsTx(ctx context.Context, fn func(accounts repository.Accounts) error) error
}

// RateLimiter — счётчик попыток (*ratelimit.Limiter).
type RateLimiter interface {
	Hit(key string, limit int, window time.Duration) ratelimit.Decision
}

// AuthLimits — лимиты попыток входа и восстановления пароля.
type AuthLimits struct {
	LoginPerIP       int
	LoginPerEmail    int
	LoginWindow      time.Duration
	RecoveryPerIP    int
	RecoveryPerEmail int
	RecoveryWindow   time.Duration
}

// UserInfo — публичные данные пользователя IdP.
type UserInfo struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// AuthResult — пользователь с профилем и ролями.
// Session заполняется только для входа и обновления.
type AuthResult struct {
	Session *idp.Session   `json:"-"`
	User    UserInfo       `json:"user"`
	Profile *model.Profile `json:"profile"`
	Roles   []string       `json:"roles"`
}

// RegisterInput — тело /auth/register.
type RegisterInput struct {
	Email         string    `json:"email"`
	Password      string    `json:"password"`
	Name          string    `json:"name"`
	Meli          *string   `json:"meli"`
	LegacyUserID  *LegacyID `json:"legacy_user_id"`
	PeopleforceID *string   `json:"peopleforce_id"`
	Status        *string   `json:"status"`
	StatusDetail  *string   `json:"status_detail"`
	Team          *string   `json:"team"`
	Leader        *string   `json:"leader"`
}

// RegisterResult — результат регистрации.
type RegisterResult struct {
	User                   UserInfo       `json:"user"`
	Profile                *model.Profile `json:"profile"`
	BootstrapAdminAssigned bool           `json:"bootstrap_admin_assigned"`
}

// AuthService — аутентификация через IdP и загрузка профиля с ролями.
type AuthService struct {
	idp              IdentityProvider
	profiles         repository.ProfileRepository
	roles            repository.RoleRepository
	accounts         AccountsTx
	gateway          gateway.Caller
	limiter          RateLimiter
	limits           AuthLimits
	resetRedirectURL string
	logger           *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
// resetRedirectURL может быть пустым: тогда IdP использует свой адрес по умолчанию.
func NewAuthService(
	provider IdentityProvider,
	profiles repository.ProfileRepository,
	roles repository.RoleRepository,
	accounts AccountsTx,
	gw gateway.Caller,
	limiter RateLimiter,
	limits AuthLimits,
	resetRedirectURL string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		idp:              provider,
		profiles:         profiles,
		roles:            roles,
		accounts:         accounts,
		gateway:          gw,
		limiter:          limiter,
		limits:           limits,
		resetRedirectURL: resetRedirectURL,
		logger:           logger.With(slog.String("component", "auth_service")),
	}
}

// Login проверяет лимиты (сначала по IP, затем по email) и выполняет вход.
func (s *AuthService) Login(ctx context.Context, email, password string, meta RequestMeta) (*AuthResult, error) {
	if !s.allow("auth_login", meta.IP, email, s.limits.LoginPerIP, s.limits.LoginPerEmail, s.limits.LoginWindow) {
		return nil, apierrors.RateLimited(MsgTooManyLogins)
	}

	session, err := s.idp.Login(ctx, email, password)
	if err != nil {
		return nil, s.sessionError(err, "вход")
	}
	if session == nil || session.User == nil || session.AccessToken == "" {
		return nil, apierrors.Unauthorized(MsgInvalidLoginResponse)
	}
	return s.withAccount(ctx, session)
}

// Refresh обменивает refresh token на новую сессию.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, apierrors.Unauthorized(MsgMissingRefreshToken)
	}

	session, err := s.idp.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, s.sessionError(err, "обновление сессии")
	}
	if session == nil || session.User == nil || session.AccessToken == "" {
		return nil, apierrors.Unauthorized(MsgInvalidRefreshResponse)
	}
	return s.withAccount(ctx, session)
}

// Me возвращает текущего пользователя с профилем и ролями.
func (s *AuthService) Me(ctx context.Context, caller *model.Caller) (*AuthResult, error) {
	a, err := loadActor(ctx, s.profiles, s.roles, caller)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:    UserInfo{ID: caller.ID, Email: caller.Email},
		Profile: a.profile,
		Roles:   nonNil(a.roles),
	}, nil
}

func (s *AuthService) withAccount(ctx context.Context, session *idp.Session) (*AuthResult, error) {
	caller := &model.Caller{ID: session.User.ID, Email: session.User.Email}
	a, err := loadActor(ctx, s.profiles, s.roles, caller)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Session: session,
		User:    UserInfo{ID: caller.ID, Email: caller.Email},
		Profile: a.profile,
		Roles:   nonNil(a.roles),
	}, nil
}

// sessionError — любая ошибка входа или обновления становится 401.
func (s *AuthService) sessionError(err error, op string) error {
	var provErr *idp.Error
	if errors.As(err, &provErr) && provErr.Message != "" {
		return apierrors.Unauthorized(provErr.Message)
	}
	s.logger.Warn("IdP не ответил", slog.String("operation", op), slog.String("error", err.Error()))
	return apierrors.Unauthorized("Identity provider unavailable")
}

// Register создаёт пользователя в IdP и его профиль.
//
// caller — администратор, выполняющий регистрацию, или nil. Без caller
// регистрация разрешена только пока в системе нет ни одного назначения роли:
// такой пользователь становится admin (bootstrap).
//
// Если профиль или роль не удалось сохранить, пользователь удаляется из IdP.
func (s *AuthService) Register(ctx context.Context, caller *model.Caller, in RegisterInput) (*RegisterResult, error) {
	bootstrap, err := s.authorizeRegistration(ctx, caller)
	if err != nil {
		return nil, err
	}

	user, err := s.idp.CreateUser(ctx, in.Email, in.Password)
	if err != nil {
		s.logger.Warn("IdP не создал пользователя", slog.String("error", err.Error()))
		return nil, apierrors.FromProvider(err, MsgFailedToCreateUser)
	}
	if user == nil || user.ID == uuid.Nil {
		return nil, ErrUserNotCreated
	}

	profile := newProfile(user.ID, in)
	err = s.accounts.RunAccountsTx(ctx, func(accounts repository.Accounts) error {
		if err := accounts.Profiles.Create(ctx, profile); err != nil {
			return err
		}
		if bootstrap {
			return accounts.Roles.AssignRole(ctx, user.ID, rbac.RoleAdmin)
		}
		return nil
	})
	if err != nil {
		s.compensate(user.ID, err)
		if errors.Is(err, repository.ErrConflict) {
			return nil, apierrors.Conflict("Profile already exists")
		}
		return nil, fmt.Errorf("сохранение профиля: %w", err)
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", user.ID.String()),
		slog.Bool("bootstrap_admin", bootstrap),
	)
	return &RegisterResult{
		User:                   UserInfo{ID: user.ID, Email: user.Email},
		Profile:                profile,
		BootstrapAdminAssigned: bootstrap,
	}, nil
}

// authorizeRegistration возвращает true для bootstrap-регистрации.
func (s *AuthService) authorizeRegistration(ctx context.Context, caller *model.Caller) (bool, error) {
	if caller != nil {
		roles, err := s.roles.ListRoles(ctx, caller.ID)
		if err != nil {
			return false, fmt.Errorf("загрузка ролей: %w", err)
		}
		if !rbac.HasAny(roles, rbac.RoleAdmin) {
			return false, apierrors.Forbidden(MsgAdminRequired)
		}
		return false, nil
	}

	has, err := s.roles.HasAnyAssignments(ctx)
	if err != nil {
		return false, fmt.Errorf("проверка назначений ролей: %w", err)
	}
	if has {
		return false, apierrors.Forbidden(MsgAdminRequired)
	}
	return true, nil
}

// compensate удаляет пользователя IdP после неудачного сохранения профиля.
// Контекст запроса может быть уже отменён, поэтому используется свой.
func (s *AuthService) compensate(userID uuid.UUID, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.idp.DeleteUser(ctx, userID); err != nil {
		s.logger.Error("Не удалось удалить пользователя IdP после ошибки регистрации",
			slog.String("user_id", userID.String()),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Warn("Регистрация отменена, пользователь IdP удалён",
		slog.String("user_id", userID.String()),
		slog.String("cause", cause.Error()),
	)
}

func newProfile(id uuid.UUID, in RegisterInput) *model.Profile {
	p := &model.Profile{
		ID:            id,
		Name:          in.Name,
		Meli:          in.Meli,
		PeopleforceID: in.PeopleforceID,
		Status:        model.StatusActive,
		StatusDetail:  in.StatusDetail,
		Team:          in.Team,
		Leader:        in.Leader,
	}
	if in.Status != nil && *in.Status != "" {
		p.Status = *in.Status
	}
	if in.LegacyUserID != nil {
		v := int64(*in.LegacyUserID)
		p.LegacyUserID = &v
	}
	return p
}

// RequestPasswordRecovery отправляет письмо восстановления, если адрес
// разрешён в allowlist. Клиент всегда получает успех: по ответу нельзя
// узнать, есть ли адрес в allowlist. Ошибку возвращает только лимит попыток.
func (s *AuthService) RequestPasswordRecovery(ctx context.Context, email string, meta RequestMeta) error {
	if !s.allow("auth_recovery", meta.IP, email, s.limits.RecoveryPerIP, s.limits.RecoveryPerEmail, s.limits.RecoveryWindow) {
		return apierrors.RateLimited(MsgTooManyRecoveries)
	}

	normalized := normalizeEmail(email)
	if normalized == "" {
		return nil
	}

	allowed := false
	result := RecoveryResultOK
	errorMessage := ""

	entry, err := gateway.CallInto[*AllowlistEntry](ctx, s.gateway, gateway.ActionAllowlistGet, map[string]any{
		"email": normalized,
	})
	if err != nil {
		result = RecoveryResultError
		errorMessage = "Allowlist lookup failed"
		s.logger.Warn("Проверка allowlist не удалась", slog.String("error", err.Error()))
	} else {
		allowed = entry != nil && entry.Enabled && entry.CanResetPassword
	}

	if allowed {
		if err := s.idp.SendPasswordRecovery(ctx, normalized, s.resetRedirectURL); err != nil {
			result = RecoveryResultError
			var provErr *idp.Error
			if errors.As(err, &provErr) && provErr.Message != "" {
				errorMessage = provErr.Message
			} else {
				errorMessage = "Password recovery request failed"
			}
			s.logger.Warn("IdP отклонил восстановление пароля", slog.String("error", err.Error()))
		}
	}

	_, err = s.gateway.Call(ctx, gateway.ActionLogsAppend, map[string]any{
		"action":        "AUTH_PASSWORD_RESET_REQUEST",
		"resource":      "auth",
		"actor_email":   normalized,
		"result":        result,
		"error_message": errorMessage,
		"ip":            clientIP(meta.IP),
		"user_agent":    meta.UserAgent,
		"meta_json":     map[string]any{"allowed": allowed},
	})
	if err != nil {
		s.logger.Warn("Запись в журнал аудита не удалась", slog.String("error", err.Error()))
	}
	return nil
}

// allow проверяет лимиты по IP и по email. Ключ email проверяется,
// только если IP-лимит не превышен.
func (s *AuthService) allow(scope, ip, email string, perIP, perEmail int, window time.Duration) bool {
	if !s.limiter.Hit(scope+":ip:"+clientIP(ip), perIP, window).Allowed {
		return false
	}
	return s.limiter.Hit(scope+":email:"+normalizeEmail(email), perEmail, window).Allowed
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// clientIP подставляет "unknown", если адрес клиента не определён.
func clientIP(ip string) string {
	if ip == "" {
		return "unknown"
	}
	return ip
}

func nonNil(roles []string) []string {
	if roles == nil {
		return []string{}
	}
	return roles
}
