// Пакет errors — таксономия ошибок API и их сериализация.
// Единый формат: {"ok": false, "error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны проходить через WriteError или Write.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"
)

// Коды ошибок по HTTP-статусу.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeBadGateway   = "BAD_GATEWAY"
	CodeInternal     = "INTERNAL_SERVER_ERROR"
)

// internalMessage — сообщение для 5xx, детали наружу не отдаются.
const internalMessage = "Internal server error"

// Error — ошибка API с HTTP-статусом, машиночитаемым кодом и сообщением.
// Сервисный слой возвращает *Error, HTTP-слой сериализует через Write.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// New создаёт ошибку с явным кодом. Пустой code выводится из статуса.
func New(status int, code, message string) *Error {
	if code == "" {
		code = CodeForStatus(status)
	}
	return &Error{Status: status, Code: code, Message: message}
}

// CodeForStatus возвращает код ошибки по HTTP-статусу.
func CodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusBadGateway:
		return CodeBadGateway
	}
	if status >= 500 {
		return CodeInternal
	}
	return fmt.Sprintf("HTTP_%d", status)
}

// --- Конструкторы ---

// BadRequest — 400 некорректные входные данные.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

// BadRequestCode — 400 со специальным кодом (например, ACTION_NOT_ALLOWED).
func BadRequestCode(code, message string) *Error {
	return New(http.StatusBadRequest, code, message)
}

// Unauthorized — 401 отсутствует или невалиден credential.
func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

// ForbiddenCode — 403 со специальным кодом (CSRF_*).
func ForbiddenCode(code, message string) *Error {
	return New(http.StatusForbidden, code, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

// Conflict — 409 дублирующийся ресурс.
func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message)
}

// RateLimited — 429 превышен лимит попыток.
func RateLimited(message string) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimited, message)
}

// BadGateway — 502 ошибка upstream. Код и сообщение upstream сохраняются.
func BadGateway(code, message string) *Error {
	return New(http.StatusBadGateway, code, message)
}

// Internal — 500 внутренняя ошибка.
func Internal(message string) *Error {
	return New(http.StatusInternalServerError, CodeInternal, message)
}

// providerError — ошибка внешнего провайдера с HTTP-статусом (idp.Error).
type providerError interface {
	HTTPStatus() int
	ProviderMessage() string
}

// FromProvider переводит ошибку IdP в ошибку API по статусу:
// 401 — Unauthorized, прочие 4xx — BadRequest с сообщением провайдера,
// всё остальное — Internal без деталей.
func FromProvider(err error, fallback string) *Error {
	var pe providerError
	if !errors.As(err, &pe) {
		return Internal(fallback)
	}
	msg := pe.ProviderMessage()
	if msg == "" {
		msg = fallback
	}
	status := pe.HTTPStatus()
	switch {
	case status == http.StatusUnauthorized:
		return Unauthorized(msg)
	case status >= 400 && status < 500:
		return BadRequest(msg)
	default:
		return Internal(fallback)
	}
}

// --- Сериализация ---

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	OK    bool        `json:"ok"`
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// Для 500 сообщение заменяется на общее.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	if code == "" {
		code = CodeForStatus(statusCode)
	}
	if statusCode == http.StatusInternalServerError {
		message = internalMessage
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Write — внешняя граница обработки ошибок HTTP-слоя.
// *Error сериализуется как есть; любая другая ошибка логируется
// с методом и путём и возвращается клиенту как 500 без деталей.
func Write(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Status >= 500 && apiErr.Status != http.StatusBadGateway {
			logger.Error("Внутренняя ошибка",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			captureException(r, err)
		}
		WriteError(w, apiErr.Status, apiErr.Code, apiErr.Message)
		return
	}

	logger.Error("Необработанная ошибка",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	captureException(r, err)
	WriteError(w, http.StatusInternalServerError, CodeInternal, internalMessage)
}

// captureException отправляет ошибку в Sentry, если клиент инициализирован.
func captureException(r *http.Request, err error) {
	hub := sentry.GetHubFromContext(r.Context())
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}
	hub.CaptureException(err)
}
