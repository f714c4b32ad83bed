package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RoleRepository — назначения ролей (таблица user_roles).
type RoleRepository interface {
	// ListRoles возвращает роли пользователя в порядке назначения.
	ListRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
	// AssignRole назначает роль. Повторное назначение — no-op.
	AssignRole(ctx context.Context, userID uuid.UUID, role string) error
	// RevokeRole снимает роль. Отсутствие назначения — не ошибка.
	RevokeRole(ctx context.Context, userID uuid.UUID, role string) error
	// HasAnyAssignments — есть ли в системе хотя бы одно назначение.
	HasAnyAssignments(ctx context.Context) (bool, error)
}

type roleRepo struct {
	db DBTX
}

// NewRoleRepository создаёт репозиторий ролей.
func NewRoleRepository(db DBTX) RoleRepository {
	return &roleRepo{db: db}
}

func (r *roleRepo) ListRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT role FROM user_roles WHERE auth_user_id = $1 ORDER BY created_at, role`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ролей: %w", err)
	}
	defer rows.Close()

	roles := make([]string, 0, 2)
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("ошибка сканирования роли: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *roleRepo) AssignRole(ctx context.Context, userID uuid.UUID, role string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_roles (auth_user_id, role)
		VALUES ($1, $2)
		ON CONFLICT (auth_user_id, role) DO NOTHING`, userID, role)
	if err != nil {
		return fmt.Errorf("ошибка назначения роли: %w", err)
	}
	return nil
}

func (r *roleRepo) RevokeRole(ctx context.Context, userID uuid.UUID, role string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM user_roles WHERE auth_user_id = $1 AND role = $2`, userID, role)
	if err != nil {
		return fmt.Errorf("ошибка снятия роли: %w", err)
	}
	return nil
}

func (r *roleRepo) HasAnyAssignments(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_roles LIMIT 1)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки назначений ролей: %w", err)
	}
	return exists, nil
}
