package idp

import (
	"errors"
	"fmt"
)

// ErrUnavailable — IdP недоступен (сетевая ошибка, некорректный ответ).
var ErrUnavailable = errors.New("identity provider unavailable")

// Error — ошибка, возвращённая IdP с HTTP-статусом.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("idp: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("idp: %d: %s", e.Status, e.Message)
}

// HTTPStatus — статус ответа IdP.
func (e *Error) HTTPStatus() int { return e.Status }

// ProviderMessage — сообщение IdP для клиента.
func (e *Error) ProviderMessage() string { return e.Message }

// IsStatus — err является ошибкой IdP с указанным статусом.
func IsStatus(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}
