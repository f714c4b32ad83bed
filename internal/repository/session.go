package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
)

// SessionRepository — клиентские сессии (таблица sessions).
type SessionRepository interface {
	// Create сохраняет сессию, last_seen_at = now().
	Create(ctx context.Context, s *model.Session) error
	// Revoke отзывает сессию владельца. Чужая или несуществующая — no-op.
	Revoke(ctx context.Context, userID, sessionID uuid.UUID) error
	// ListByUser возвращает сессии пользователя, новые первыми.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Session, error)
}

type sessionRepo struct {
	db DBTX
}

// NewSessionRepository создаёт репозиторий сессий.
func NewSessionRepository(db DBTX) SessionRepository {
	return &sessionRepo{db: db}
}

const sessionColumns = `session_id, user_id, session_hash, ip, user_agent,
	created_at, expires_at, last_seen_at, revoked_at`

func scanSession(row pgx.Row) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(
		&s.SessionID, &s.UserID, &s.SessionHash, &s.IP, &s.UserAgent,
		&s.CreatedAt, &s.ExpiresAt, &s.LastSeenAt, &s.RevokedAt,
	)
	return s, err
}

func (r *sessionRepo) Create(ctx context.Context, s *model.Session) error {
	query := fmt.Sprintf(`
		INSERT INTO sessions (session_id, user_id, session_hash, ip, user_agent, expires_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING %s`, sessionColumns)

	created, err := scanSession(r.db.QueryRow(ctx, query,
		s.SessionID, s.UserID, s.SessionHash, s.IP, s.UserAgent, s.ExpiresAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	*s = *created
	return nil
}

func (r *sessionRepo) Revoke(ctx context.Context, userID, sessionID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET revoked_at = now()
		WHERE session_id = $1 AND user_id = $2 AND revoked_at IS NULL`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("ошибка отзыва сессии: %w", err)
	}
	return nil
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC`, sessionColumns)

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка сессий: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования сессии: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
