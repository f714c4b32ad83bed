// users.go — профили сотрудников, роли и клиентские сессии.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/rbac"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/repository"
)

// UserService — профили, роли и сессии пользователей BFF.
type UserService struct {
	profiles repository.ProfileRepository
	roles    repository.RoleRepository
	sessions repository.SessionRepository
	logger   *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(
	profiles repository.ProfileRepository,
	roles repository.RoleRepository,
	sessions repository.SessionRepository,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		profiles: profiles,
		roles:    roles,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

// --- Профили ---

// Profile возвращает профиль вызывающего.
func (s *UserService) Profile(ctx context.Context, caller *model.Caller) (*model.Profile, error) {
	p, err := s.profiles.FindByID(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("получение профиля: %w", err)
	}
	if p == nil {
		return nil, apierrors.NotFound(MsgProfileNotFound)
	}
	return p, nil
}

// ListProfiles возвращает все профили, новые первыми.
func (s *UserService) ListProfiles(ctx context.Context) ([]*model.Profile, error) {
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка профилей: %w", err)
	}
	return profiles, nil
}

// UpdateProfile частично обновляет профиль.
// Пустой патч возвращает текущий профиль без записи.
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.Profile, error) {
	if patch.IsEmpty() {
		p, err := s.profiles.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("получение профиля: %w", err)
		}
		if p == nil {
			return nil, apierrors.NotFound(MsgProfileNotFound)
		}
		return p, nil
	}

	p, err := s.profiles.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierrors.NotFound(MsgProfileNotFound)
		}
		s.logger.Warn("Ошибка обновления профиля",
			slog.String("user_id", id.String()),
			slog.String("error", err.Error()),
		)
		return nil, apierrors.BadRequest("Failed to update profile")
	}
	return p, nil
}

// --- Роли ---

// AssignRole назначает роль. Повторное назначение не ошибка.
func (s *UserService) AssignRole(ctx context.Context, userID uuid.UUID, role string) error {
	if !rbac.IsValidRole(role) {
		return ErrInvalidRole
	}
	if err := s.roles.AssignRole(ctx, userID, role); err != nil {
		return fmt.Errorf("назначение роли: %w", err)
	}
	s.logger.Info("Роль назначена", slog.String("user_id", userID.String()), slog.String("role", role))
	return nil
}

// RevokeRole снимает роль.
func (s *UserService) RevokeRole(ctx context.Context, userID uuid.UUID, role string) error {
	if err := s.roles.RevokeRole(ctx, userID, role); err != nil {
		return fmt.Errorf("снятие роли: %w", err)
	}
	s.logger.Info("Роль снята", slog.String("user_id", userID.String()), slog.String("role", role))
	return nil
}

// Roles возвращает роли пользователя. Чужие роли видит только admin.
func (s *UserService) Roles(ctx context.Context, caller *model.Caller, userID uuid.UUID) ([]string, error) {
	if caller.ID != userID {
		own, err := s.roles.ListRoles(ctx, caller.ID)
		if err != nil {
			return nil, fmt.Errorf("загрузка ролей: %w", err)
		}
		if !rbac.HasAny(own, rbac.RoleAdmin) {
			return nil, apierrors.Forbidden(MsgRolesOfOtherUsers)
		}
	}

	roles, err := s.roles.ListRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("загрузка ролей: %w", err)
	}
	return nonNil(roles), nil
}

// --- Сессии ---

// RegisterSession сохраняет клиентскую сессию со случайным идентификатором.
func (s *UserService) RegisterSession(ctx context.Context, caller *model.Caller, meta RequestMeta) (*model.Session, error) {
	session := &model.Session{
		SessionID: uuid.New(),
		UserID:    caller.ID,
		IP:        optional(meta.IP),
		UserAgent: optional(meta.UserAgent),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("регистрация сессии: %w", err)
	}
	return session, nil
}

// RevokeSession отзывает сессию вызывающего. Чужая сессия не затрагивается.
func (s *UserService) RevokeSession(ctx context.Context, caller *model.Caller, sessionID uuid.UUID) error {
	if err := s.sessions.Revoke(ctx, caller.ID, sessionID); err != nil {
		return fmt.Errorf("отзыв сессии: %w", err)
	}
	return nil
}

// Sessions возвращает сессии вызывающего, новые первыми.
func (s *UserService) Sessions(ctx context.Context, caller *model.Caller) ([]*model.Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("получение сессий: %w", err)
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	return sessions, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
