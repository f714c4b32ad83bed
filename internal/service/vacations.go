// vacations.go — отпуска сотрудников.
package service

import (
	"context"
	"encoding/json"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/legacyid"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/gateway"
)

// VacationsSetInput — тело /sheets/vacations/set.
type VacationsSetInput struct {
	Target
	VacationInitDate string `json:"vacation_init_date"`
	VacationEndDate  string `json:"vacation_end_date"`
	RequestID        string `json:"request_id,omitempty"`
}

// VacationsDeleteInput — тело /sheets/vacations/delete.
type VacationsDeleteInput struct {
	VacationID string `json:"vacation_id"`
	RequestID  string `json:"request_id,omitempty"`
}

// ListAllVacations — все отпуска (admin/supervisor).
func (s *SheetsService) ListAllVacations(ctx context.Context) (json.RawMessage, error) {
	return s.gateway.Call(ctx, gateway.ActionVacationsListAll, map[string]any{})
}

// ListUserVacations — отпуска одного сотрудника.
func (s *SheetsService) ListUserVacations(ctx context.Context, caller *model.Caller, t Target) (json.RawMessage, error) {
	return s.readForUser(ctx, caller, t, gateway.ActionVacationsListUser)
}

// ListTeamVacations — отпуска команды сотрудника.
func (s *SheetsService) ListTeamVacations(ctx context.Context, caller *model.Caller, t Target) (json.RawMessage, error) {
	return s.readForUser(ctx, caller, t, gateway.ActionVacationsListTeam)
}

// SetVacation создаёт отпуск. Цель определяется правилами записи.
func (s *SheetsService) SetVacation(ctx context.Context, caller *model.Caller, in VacationsSetInput, meta RequestMeta) (*WriteResult, error) {
	return s.writeForUser(ctx, caller, in.Target, gateway.ActionVacationsSet, in.RequestID, meta, map[string]any{
		"vacation_init_date": in.VacationInitDate,
		"vacation_end_date":  in.VacationEndDate,
	})
}

// DeleteVacation удаляет отпуск (admin/supervisor).
func (s *SheetsService) DeleteVacation(ctx context.Context, caller *model.Caller, in VacationsDeleteInput, meta RequestMeta) (*WriteResult, error) {
	return s.write(ctx, caller, gateway.ActionVacationsDelete, in.RequestID, meta, map[string]any{
		"vacation_id": in.VacationID,
	})
}

// readForUser разрешает legacy id для чтения и вызывает действие с {user_id}.
func (s *SheetsService) readForUser(ctx context.Context, caller *model.Caller, t Target, action string) (json.RawMessage, error) {
	a, err := loadActor(ctx, s.profiles, s.roles, caller)
	if err != nil {
		return nil, err
	}
	userID, err := legacyid.ResolveRead(ctx, s.profiles, a.resolution(t))
	if err != nil {
		return nil, err
	}
	return s.gateway.Call(ctx, action, map[string]any{"user_id": userID})
}

// writeForUser разрешает legacy id для записи и выполняет обогащённую запись.
func (s *SheetsService) writeForUser(ctx context.Context, caller *model.Caller, t Target, action, givenID string, meta RequestMeta, payload map[string]any) (*WriteResult, error) {
	a, err := loadActor(ctx, s.profiles, s.roles, caller)
	if err != nil {
		return nil, err
	}
	userID, err := legacyid.ResolveWrite(ctx, s.profiles, a.resolution(t))
	if err != nil {
		return nil, err
	}
	payload["user_id"] = userID
	return s.enrichedCall(ctx, a, action, givenID, meta, payload)
}

// write выполняет обогащённую запись без привязки к сотруднику.
func (s *SheetsService) write(ctx context.Context, caller *model.Caller, action, givenID string, meta RequestMeta, payload map[string]any) (*WriteResult, error) {
	a, err := loadRoles(ctx, s.roles, caller)
	if err != nil {
		return nil, err
	}
	return s.enrichedCall(ctx, a, action, givenID, meta, payload)
}

func (s *SheetsService) enrichedCall(ctx context.Context, a *actor, action, givenID string, meta RequestMeta, payload map[string]any) (*WriteResult, error) {
	reqID := requestID(givenID)
	data, err := s.gateway.Call(ctx, action, a.enrich(payload, reqID, meta))
	if err != nil {
		return nil, err
	}
	return &WriteResult{Result: data, RequestID: reqID}, nil
}
