// allowlist.go — список адресов, которым разрешены действия с учётной записью.
package service

import (
	"context"
	"encoding/json"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/gateway"
)

// AllowlistUpsertInput — тело /allowlist/upsert. Незаданные поля не передаются.
type AllowlistUpsertInput struct {
	Email            string  `json:"email"`
	Enabled          *bool   `json:"enabled,omitempty"`
	RoleHint         *string `json:"role_hint,omitempty"`
	CanResetPassword *bool   `json:"can_reset_password,omitempty"`
	CanManageUsers   *bool   `json:"can_manage_users,omitempty"`
	Notes            *string `json:"notes,omitempty"`
	RequestID        string  `json:"request_id,omitempty"`
}

// AllowlistEntry — запись allowlist, нужная для восстановления пароля.
type AllowlistEntry struct {
	Email            string `json:"email"`
	Enabled          bool   `json:"enabled"`
	CanResetPassword bool   `json:"can_reset_password"`
}

// GetAllowlistEntry возвращает запись по адресу.
func (s *SheetsService) GetAllowlistEntry(ctx context.Context, email string) (json.RawMessage, error) {
	return s.gateway.Call(ctx, gateway.ActionAllowlistGet, map[string]any{"email": email})
}

// ListAllowlist возвращает весь allowlist.
func (s *SheetsService) ListAllowlist(ctx context.Context) (json.RawMessage, error) {
	return s.gateway.Call(ctx, gateway.ActionAllowlistList, map[string]any{})
}

// UpsertAllowlist создаёт или обновляет запись.
func (s *SheetsService) UpsertAllowlist(ctx context.Context, caller *model.Caller, in AllowlistUpsertInput, meta RequestMeta) (*WriteResult, error) {
	payload := map[string]any{"email": in.Email}
	setIfPresent(payload, "enabled", in.Enabled)
	setIfPresent(payload, "role_hint", in.RoleHint)
	setIfPresent(payload, "can_reset_password", in.CanResetPassword)
	setIfPresent(payload, "can_manage_users", in.CanManageUsers)
	setIfPresent(payload, "notes", in.Notes)
	return s.write(ctx, caller, gateway.ActionAllowlistUpsert, in.RequestID, meta, payload)
}

// DisableAllowlist отключает запись. request_id всегда новый.
func (s *SheetsService) DisableAllowlist(ctx context.Context, caller *model.Caller, email string, meta RequestMeta) (*WriteResult, error) {
	return s.write(ctx, caller, gateway.ActionAllowlistDisable, "", meta, map[string]any{"email": email})
}

func setIfPresent[T any](payload map[string]any, key string, v *T) {
	if v != nil {
		payload[key] = *v
	}
}
