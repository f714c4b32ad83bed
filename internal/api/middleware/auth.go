// auth.go — аутентификация запросов по access token IdP и проверка ролей.
// Токен всегда подтверждается запросом к IdP (через кэш). Локальная проверка
// подписи (HS256 по секрету или JWKS) отсекает поддельные токены до сети.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/rbac"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/idp"
)

// jwksRefreshInterval — интервал фонового обновления JWKS.
const jwksRefreshInterval = 15 * time.Minute

// UserValidator — подтверждение токена в IdP. Реализуется idp.TokenCache.
type UserValidator interface {
	GetUser(ctx context.Context, accessToken string) (*idp.User, error)
}

// RoleSource — роли пользователя из БД. Реализуется repository.RoleRepository.
type RoleSource interface {
	ListRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// AuthOptions — параметры локальной проверки подписи.
// Оба поля пусты — claims декодируются без проверки, подлинность
// подтверждает только IdP.
type AuthOptions struct {
	// JWTSecret — общий секрет HS256.
	JWTSecret string
	// JWKSURL — JWKS endpoint для RS256/ES256. Приоритетнее JWTSecret.
	JWKSURL string
	// HTTPClient — клиент загрузки JWKS (nil — http.DefaultClient).
	HTTPClient *http.Client
	// Leeway — допустимое расхождение часов.
	Leeway time.Duration
}

// Authenticator — middleware аутентификации.
type Authenticator struct {
	validator UserValidator
	transport *Transport
	jwks      keyfunc.Keyfunc
	secret    []byte
	leeway    time.Duration
	logger    *slog.Logger
}

// NewAuthenticator создаёт middleware аутентификации.
func NewAuthenticator(validator UserValidator, transport *Transport, opts AuthOptions, logger *slog.Logger) (*Authenticator, error) {
	a := &Authenticator{
		validator: validator,
		transport: transport,
		leeway:    opts.Leeway,
		logger:    logger.With(slog.String("component", "auth")),
	}

	switch {
	case opts.JWKSURL != "":
		client := opts.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен.
		storage, err := jwkset.NewStorageFromHTTP(opts.JWKSURL, jwkset.HTTPClientStorageOptions{
			Client:                    client,
			NoErrorReturnFirstHTTPReq: true,
			RefreshInterval:           jwksRefreshInterval,
			RefreshErrorHandler: func(_ context.Context, err error) {
				a.logger.Error("Ошибка обновления JWKS",
					slog.String("error", err.Error()),
					slog.String("url", opts.JWKSURL),
				)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("создание JWKS storage: %w", err)
		}
		k, err := keyfunc.New(keyfunc.Options{Storage: storage})
		if err != nil {
			return nil, fmt.Errorf("создание keyfunc: %w", err)
		}
		a.jwks = k
	case opts.JWTSecret != "":
		a.secret = []byte(opts.JWTSecret)
	}

	return a, nil
}

// NewAuthenticatorWithKeyfunc создаёт middleware с готовой keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewAuthenticatorWithKeyfunc(validator UserValidator, transport *Transport, kf keyfunc.Keyfunc, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		validator: validator,
		transport: transport,
		jwks:      kf,
		logger:    logger.With(slog.String("component", "auth")),
	}
}

// Middleware требует валидный access token и помещает model.Caller в контекст.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := a.transport.AccessToken(r)
			if token == "" {
				apierrors.WriteError(w, http.StatusUnauthorized, "", "Missing access token")
				return
			}

			caller, err := a.Authenticate(r.Context(), token)
			if err != nil {
				apierrors.Write(w, r, a.logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// Authenticate проверяет токен и возвращает пользователя.
// Любая ошибка проверки — 401.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*model.Caller, error) {
	claims, err := a.claims(ctx, token)
	if err != nil {
		a.logger.Debug("Локальная проверка токена не пройдена", slog.String("error", err.Error()))
		return nil, apierrors.Unauthorized("Invalid token")
	}

	user, err := a.validator.GetUser(ctx, token)
	if err != nil {
		msg := "Invalid token"
		var pe *idp.Error
		if errors.As(err, &pe) && pe.Message != "" {
			msg = pe.Message
		}
		a.logger.Debug("Токен отклонён IdP", slog.String("error", err.Error()))
		return nil, apierrors.Unauthorized(msg)
	}
	if user == nil || user.ID == uuid.Nil {
		return nil, apierrors.Unauthorized("Invalid token")
	}

	// Подписанный токен должен принадлежать тому же пользователю
	if a.verifies() {
		if sub, _ := claims["sub"].(string); sub != "" && sub != user.ID.String() {
			return nil, apierrors.Unauthorized("Invalid token")
		}
	}

	return &model.Caller{
		ID:          user.ID,
		Email:       user.Email,
		Claims:      claims,
		AppMetadata: user.AppMetadata,
	}, nil
}

func (a *Authenticator) verifies() bool {
	return a.jwks != nil || a.secret != nil
}

// claims возвращает payload токена: проверенный, если настроен ключ,
// иначе декодированный без проверки подписи (пустой при ошибке разбора).
func (a *Authenticator) claims(ctx context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}

	if !a.verifies() {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return jwt.MapClaims{}, nil
		}
		return claims, nil
	}

	var (
		kf      jwt.Keyfunc
		methods []string
	)
	if a.jwks != nil {
		kf = a.jwks.KeyfuncCtx(ctx)
		methods = []string{"RS256", "ES256"}
	} else {
		secret := a.secret
		kf = func(*jwt.Token) (any, error) { return secret, nil }
		methods = []string{"HS256"}
	}

	_, err := jwt.ParseWithClaims(token, claims, kf,
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// --- RBAC ---

// RequireRole пропускает пользователя, у которого есть хотя бы одна из ролей.
// Роли берутся из claim user_role и app_metadata.user_role; если их нет,
// из БД. Используется после Authenticator.Middleware().
func RequireRole(source RoleSource, logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFromContext(r.Context())
			if caller == nil {
				apierrors.WriteError(w, http.StatusUnauthorized, "", "Missing authenticated user")
				return
			}

			userRoles := rbac.RolesFromClaims(caller.Claims, caller.AppMetadata)
			if len(userRoles) == 0 {
				dbRoles, err := source.ListRoles(r.Context(), caller.ID)
				if err != nil {
					logger.Error("Ошибка получения ролей",
						slog.String("user_id", caller.ID.String()),
						slog.String("error", err.Error()),
					)
					apierrors.WriteError(w, http.StatusForbidden, "", "Failed to load roles")
					return
				}
				userRoles = dbRoles
			}

			if !rbac.HasAny(userRoles, roles...) {
				apierrors.WriteError(w, http.StatusForbidden, "", "Insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
