// errors.go — ошибки и сообщения сервисного слоя.
package service

import "errors"

// Сообщения ошибок, которые видит клиент.
const (
	MsgAdminRequired          = "Admin role required"
	MsgProfileNotFound        = "Profile not found"
	MsgRolesOfOtherUsers      = "Not allowed to view roles for other users"
	MsgSessionIDRequired      = "session_id is required"
	MsgMissingRefreshToken    = "Missing refresh token"
	MsgInvalidLoginResponse   = "Invalid login response"
	MsgInvalidRefreshResponse = "Invalid refresh response"
	MsgTooManyLogins          = "Too many login attempts"
	MsgTooManyRecoveries      = "Too many password recovery attempts"
	MsgFailedToCreateUser     = "Failed to create user"
)

var (
	// ErrUserNotCreated — IdP ответил успехом, но без пользователя.
	ErrUserNotCreated = errors.New("IdP не вернул созданного пользователя")
	// ErrInvalidRole — роль не входит в admin, supervisor, user.
	ErrInvalidRole = errors.New("некорректная роль: допустимые значения — admin, supervisor, user")
)
