package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
)

// ProfileRepository — доступ к таблице user_profiles.
type ProfileRepository interface {
	// FindByID возвращает профиль или nil, если профиля нет.
	FindByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	// Create создаёт профиль. Дубликат id — ErrConflict.
	Create(ctx context.Context, p *model.Profile) error
	// Update применяет непустые поля патча и возвращает обновлённый профиль.
	Update(ctx context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.Profile, error)
	// List возвращает все профили, новые первыми.
	List(ctx context.Context) ([]*model.Profile, error)
}

type profileRepo struct {
	db DBTX
}

// NewProfileRepository создаёт репозиторий профилей.
func NewProfileRepository(db DBTX) ProfileRepository {
	return &profileRepo{db: db}
}

const profileColumns = `id, legacy_user_id, peopleforce_id, name, meli, status,
	status_detail, team, leader, created_at, updated_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	p := &model.Profile{}
	err := row.Scan(
		&p.ID, &p.LegacyUserID, &p.PeopleforceID, &p.Name, &p.Meli, &p.Status,
		&p.StatusDetail, &p.Team, &p.Leader, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (r *profileRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_profiles WHERE id = $1`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения профиля: %w", err)
	}
	return p, nil
}

func (r *profileRepo) Create(ctx context.Context, p *model.Profile) error {
	if p.Status == "" {
		p.Status = model.StatusActive
	}
	query := fmt.Sprintf(`
		INSERT INTO user_profiles (id, legacy_user_id, peopleforce_id, name, meli,
			status, status_detail, team, leader)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s`, profileColumns)

	created, err := scanProfile(r.db.QueryRow(ctx, query,
		p.ID, p.LegacyUserID, p.PeopleforceID, p.Name, p.Meli,
		p.Status, p.StatusDetail, p.Team, p.Leader,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания профиля: %w", err)
	}
	*p = *created
	return nil
}

func (r *profileRepo) Update(ctx context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.Profile, error) {
	sets := make([]string, 0, 9)
	args := make([]any, 0, 9)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.LegacyUserID != nil {
		add("legacy_user_id", *patch.LegacyUserID)
	}
	if patch.PeopleforceID != nil {
		add("peopleforce_id", *patch.PeopleforceID)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Meli != nil {
		add("meli", *patch.Meli)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.StatusDetail != nil {
		add("status_detail", *patch.StatusDetail)
	}
	if patch.Team != nil {
		add("team", *patch.Team)
	}
	if patch.Leader != nil {
		add("leader", *patch.Leader)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE user_profiles SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления профиля: %w", err)
	}
	return p, nil
}

func (r *profileRepo) List(ctx context.Context) ([]*model.Profile, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_profiles ORDER BY created_at DESC`, profileColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка профилей: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования профиля: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
