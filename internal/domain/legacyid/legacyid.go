// Пакет legacyid — сопоставление пользователя (UUID в IdP) с legacy user_id
// в данных Apps Script и проверка права действовать от имени другого пользователя.
//
// Правило: пользователь без повышенных прав всегда работает только со своим
// legacy_user_id; явная цель запроса учитывается только для admin/supervisor.
package legacyid

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
)

// Сообщения ошибок (400).
const (
	MsgTargetMissingLegacyID = "Target user is missing legacy_user_id"
	MsgCallerMissingLegacyID = "Missing legacy_user_id for this user"
	MsgTargetRequired        = "user_id (legacy) or auth_user_id is required"
)

// ProfileLookup — поиск профиля по UUID. nil, nil — профиль не найден.
type ProfileLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
}

// Request — входные данные разрешения.
type Request struct {
	// CallerLegacyID — legacy_user_id из профиля вызывающего (nil — не задан)
	CallerLegacyID *int64
	// Elevated — вызывающий имеет роль admin или supervisor
	Elevated bool
	// TargetAuthID — явная цель по UUID (auth_user_id в теле запроса)
	TargetAuthID *uuid.UUID
	// TargetLegacyID — явная цель по legacy id (user_id в теле запроса)
	TargetLegacyID *int64
}

// ResolveRead определяет legacy id для чтения.
//  1. elevated + TargetAuthID — legacy id целевого профиля;
//  2. elevated + TargetLegacyID — он же;
//  3. иначе собственный legacy id вызывающего.
func ResolveRead(ctx context.Context, lookup ProfileLookup, req Request) (int64, error) {
	if id, ok, err := resolveTarget(ctx, lookup, req); ok || err != nil {
		return id, err
	}
	if !present(req.CallerLegacyID) {
		return 0, apierrors.BadRequest(MsgCallerMissingLegacyID)
	}
	return *req.CallerLegacyID, nil
}

// ResolveWrite определяет legacy id для записи. Отличие от ResolveRead:
// elevated-вызывающий без явной цели и без собственного legacy id
// получает ошибку о необходимости указать цель.
func ResolveWrite(ctx context.Context, lookup ProfileLookup, req Request) (int64, error) {
	if id, ok, err := resolveTarget(ctx, lookup, req); ok || err != nil {
		return id, err
	}
	if present(req.CallerLegacyID) {
		return *req.CallerLegacyID, nil
	}
	if req.Elevated {
		return 0, apierrors.BadRequest(MsgTargetRequired)
	}
	return 0, apierrors.BadRequest(MsgCallerMissingLegacyID)
}

// resolveTarget обрабатывает явную цель. ok=false — цель не применима.
func resolveTarget(ctx context.Context, lookup ProfileLookup, req Request) (int64, bool, error) {
	if !req.Elevated {
		return 0, false, nil
	}
	if req.TargetAuthID != nil {
		id, err := byAuthID(ctx, lookup, *req.TargetAuthID)
		return id, true, err
	}
	if present(req.TargetLegacyID) {
		return *req.TargetLegacyID, true, nil
	}
	return 0, false, nil
}

// byAuthID возвращает legacy id профиля по UUID.
// Отсутствующий профиль и профиль без legacy id дают одну и ту же ошибку.
func byAuthID(ctx context.Context, lookup ProfileLookup, authID uuid.UUID) (int64, error) {
	profile, err := lookup.FindByID(ctx, authID)
	if err != nil {
		return 0, fmt.Errorf("поиск профиля %s: %w", authID, err)
	}
	if !profile.HasLegacyID() {
		return 0, apierrors.BadRequest(MsgTargetMissingLegacyID)
	}
	return *profile.LegacyUserID, nil
}

func present(v *int64) bool {
	return v != nil && *v != 0
}

// FilterTasksByOwner оставляет задачи, у которых user_id численно равен legacyID.
// user_id может прийти числом или строкой ("17" == 17). Не-объекты отбрасываются.
func FilterTasksByOwner(tasks []json.RawMessage, legacyID int64) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(tasks))
	for _, raw := range tasks {
		var task map[string]json.RawMessage
		if err := json.Unmarshal(raw, &task); err != nil || task == nil {
			continue
		}
		owner, ok := numericValue(task["user_id"])
		if ok && owner == float64(legacyID) {
			out = append(out, raw)
		}
	}
	return out
}

// numericValue приводит JSON-значение к числу: число как есть,
// строка через ParseFloat. Остальные типы не сравниваются.
func numericValue(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}
