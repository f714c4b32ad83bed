package model

import (
	"time"

	"github.com/google/uuid"
)

// Session — зарегистрированная клиентская сессия (таблица sessions).
// Отзыв проставляет RevokedAt, строка не удаляется.
type Session struct {
	SessionID   uuid.UUID  `json:"session_id"`
	UserID      uuid.UUID  `json:"user_id"`
	SessionHash *string    `json:"session_hash"`
	IP          *string    `json:"ip"`
	UserAgent   *string    `json:"user_agent"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	LastSeenAt  *time.Time `json:"last_seen_at"`
	RevokedAt   *time.Time `json:"revoked_at"`
}
