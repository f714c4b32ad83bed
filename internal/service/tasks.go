// tasks.go — задачи сотрудников в Apps Script.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/legacyid"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/gateway"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/repository"
)

// SheetsService — операции над данными Apps Script: задачи, отпуска,
// отсутствия, журнал и allowlist. Каждый вызов идёт через шлюз действий.
type SheetsService struct {
	gateway  gateway.Caller
	profiles repository.ProfileRepository
	roles    repository.RoleRepository
	logger   *slog.Logger
}

// NewSheetsService создаёт сервис данных Apps Script.
func NewSheetsService(
	gw gateway.Caller,
	profiles repository.ProfileRepository,
	roles repository.RoleRepository,
	logger *slog.Logger,
) *SheetsService {
	return &SheetsService{
		gateway:  gw,
		profiles: profiles,
		roles:    roles,
		logger:   logger.With(slog.String("component", "sheets_service")),
	}
}

// TasksSetInput — тело /sheets/tasks/set-multiple.
type TasksSetInput struct {
	Tasks     []json.RawMessage `json:"tasks"`
	RequestID string            `json:"request_id,omitempty"`
}

// TasksDeleteInput — тело /sheets/tasks/delete-multiple.
type TasksDeleteInput struct {
	TaskIDs   []string `json:"task_ids"`
	RequestID string   `json:"request_id,omitempty"`
}

// ListTasks возвращает задачи. admin/supervisor видят все задачи,
// остальные только свои (по legacy_user_id).
func (s *SheetsService) ListTasks(ctx context.Context, caller *model.Caller) ([]json.RawMessage, error) {
	a, err := loadActor(ctx, s.profiles, s.roles, caller)
	if err != nil {
		return nil, err
	}

	// Без legacy id фильтровать нечем: отказ до обращения к upstream.
	if !a.elevated() && !a.profile.HasLegacyID() {
		return nil, apierrors.BadRequest(legacyid.MsgCallerMissingLegacyID)
	}

	tasks, err := gateway.CallInto[[]json.RawMessage](ctx, s.gateway, gateway.ActionTasksList, map[string]any{})
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []json.RawMessage{}
	}
	if a.elevated() {
		return tasks, nil
	}
	return legacyid.FilterTasksByOwner(tasks, *a.profile.LegacyUserID), nil
}

// SetTasks создаёт или обновляет набор задач.
func (s *SheetsService) SetTasks(ctx context.Context, caller *model.Caller, in TasksSetInput, meta RequestMeta) (json.RawMessage, error) {
	if in.Tasks == nil {
		in.Tasks = []json.RawMessage{}
	}
	return s.taskWrite(ctx, caller, gateway.ActionTasksSetMultiple, in.RequestID, meta, map[string]any{
		"tasks": in.Tasks,
	})
}

// DeleteTasks удаляет задачи по идентификаторам.
func (s *SheetsService) DeleteTasks(ctx context.Context, caller *model.Caller, in TasksDeleteInput, meta RequestMeta) (json.RawMessage, error) {
	if in.TaskIDs == nil {
		in.TaskIDs = []string{}
	}
	return s.taskWrite(ctx, caller, gateway.ActionTasksDeleteMultiple, in.RequestID, meta, map[string]any{
		"task_ids": in.TaskIDs,
	})
}

// taskWrite выполняет запись задач. Ответ — объект upstream с добавленным request_id.
func (s *SheetsService) taskWrite(ctx context.Context, caller *model.Caller, action, givenID string, meta RequestMeta, payload map[string]any) (json.RawMessage, error) {
	a, err := loadRoles(ctx, s.roles, caller)
	if err != nil {
		return nil, err
	}
	reqID := requestID(givenID)

	data, err := s.gateway.Call(ctx, action, a.enrich(payload, reqID, meta))
	if err != nil {
		return nil, err
	}
	return mergeRequestID(data, reqID)
}

// mergeRequestID добавляет request_id в объект data.
// Не-объект оборачивается в {result, request_id}.
func mergeRequestID(data json.RawMessage, reqID string) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return json.Marshal(WriteResult{Result: data, RequestID: reqID})
	}
	id, err := json.Marshal(reqID)
	if err != nil {
		return nil, fmt.Errorf("сериализация request_id: %w", err)
	}
	obj["request_id"] = id
	return json.Marshal(obj)
}
