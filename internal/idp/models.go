package idp

import (
	"time"

	"github.com/google/uuid"
)

// User — пользователь IdP (ответ /auth/v1/user и /auth/v1/admin/users).
type User struct {
	ID           uuid.UUID      `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    *time.Time     `json:"created_at,omitempty"`
}

// Session — ответ token endpoint (grant_type=password / refresh_token).
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// passwordGrantRequest — тело запроса grant_type=password.
type passwordGrantRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshGrantRequest — тело запроса grant_type=refresh_token.
type refreshGrantRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// createUserRequest — тело POST /auth/v1/admin/users.
type createUserRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	EmailConfirm bool   `json:"email_confirm"`
}

// recoverRequest — тело POST /auth/v1/recover.
type recoverRequest struct {
	Email string `json:"email"`
}

// errorResponse — тело ошибки. GoTrue отдаёт одну из двух форм:
// {error, error_description} или {code, error_code, msg}; иногда {message}.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}
