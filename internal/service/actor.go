// Пакет service — бизнес-логика BFF Gateway.
// actor.go — общий контекст вызывающего: профиль, роли, обогащение payload.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/legacyid"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/rbac"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/repository"
)

// RequestMeta — данные HTTP-запроса для аудита в Apps Script.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// WriteResult — ответ операции записи: результат upstream и request_id.
type WriteResult struct {
	Result    json.RawMessage `json:"result"`
	RequestID string          `json:"request_id"`
}

// LegacyID — legacy user_id в теле запроса. Принимает число или строку с числом.
type LegacyID int64

// UnmarshalJSON разбирает 17 и "17" одинаково.
func (id *LegacyID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("user_id должен быть целым числом: %q", raw)
	}
	*id = LegacyID(n)
	return nil
}

// Target — явная цель запроса (учитывается только для admin/supervisor).
type Target struct {
	AuthUserID *uuid.UUID `json:"auth_user_id,omitempty"`
	UserID     *LegacyID  `json:"user_id,omitempty"`
}

// actor — вызывающий пользователь с загруженными профилем и ролями.
type actor struct {
	caller  *model.Caller
	profile *model.Profile
	roles   []string
}

// loadActor загружает профиль и роли вызывающего параллельно.
func loadActor(ctx context.Context, profiles repository.ProfileRepository, roles repository.RoleRepository, caller *model.Caller) (*actor, error) {
	a := &actor{caller: caller}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := profiles.FindByID(gctx, caller.ID)
		if err != nil {
			return fmt.Errorf("загрузка профиля: %w", err)
		}
		a.profile = p
		return nil
	})
	g.Go(func() error {
		r, err := roles.ListRoles(gctx, caller.ID)
		if err != nil {
			return fmt.Errorf("загрузка ролей: %w", err)
		}
		a.roles = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return a, nil
}

// loadRoles загружает только роли: для записи без разрешения legacy id.
func loadRoles(ctx context.Context, roles repository.RoleRepository, caller *model.Caller) (*actor, error) {
	r, err := roles.ListRoles(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("загрузка ролей: %w", err)
	}
	return &actor{caller: caller, roles: r}, nil
}

func (a *actor) elevated() bool {
	return rbac.IsElevated(a.roles)
}

// resolution строит запрос разрешения legacy id.
func (a *actor) resolution(t Target) legacyid.Request {
	req := legacyid.Request{
		Elevated:     a.elevated(),
		TargetAuthID: t.AuthUserID,
	}
	if a.profile != nil {
		req.CallerLegacyID = a.profile.LegacyUserID
	}
	if t.UserID != nil {
		v := int64(*t.UserID)
		req.TargetLegacyID = &v
	}
	return req
}

// enrich дополняет payload записи полями аудита.
func (a *actor) enrich(payload map[string]any, requestID string, meta RequestMeta) map[string]any {
	payload["request_id"] = requestID
	payload["actor_user_id"] = a.caller.ID.String()
	payload["actor_email"] = a.caller.Email
	payload["actor_role"] = rbac.ResolveActorRole(a.roles)
	payload["ip"] = meta.IP
	payload["user_agent"] = meta.UserAgent
	return payload
}

// requestID возвращает переданный клиентом request_id или новый UUID v4.
func requestID(given string) string {
	if strings.TrimSpace(given) != "" {
		return given
	}
	return uuid.NewString()
}
