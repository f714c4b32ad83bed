package model

import "github.com/google/uuid"

// Caller — аутентифицированный пользователь текущего запроса.
// Формируется middleware на каждый запрос и нигде не сохраняется.
type Caller struct {
	// ID — идентификатор пользователя в IdP
	ID uuid.UUID
	// Email — пустая строка, если IdP не вернул адрес
	Email string
	// Claims — payload access-токена (проверенный локально или декодированный)
	Claims map[string]any
	// AppMetadata — app_metadata пользователя из IdP
	AppMetadata map[string]any
}
