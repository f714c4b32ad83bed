// absences.go — отсутствия сотрудников.
package service

import (
	"context"
	"encoding/json"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/gateway"
)

// AbsencesCreateInput — тело /sheets/absences/create.
type AbsencesCreateInput struct {
	Target
	AbsenceCase string  `json:"absence_case"`
	AbsenceDate string  `json:"absence_date"`
	Notes       *string `json:"notes,omitempty"`
	RequestID   string  `json:"request_id,omitempty"`
}

// AbsencesDeleteInput — тело /sheets/absences/delete.
type AbsencesDeleteInput struct {
	AbsenceID string `json:"absence_id"`
	RequestID string `json:"request_id,omitempty"`
}

// CreateAbsence регистрирует отсутствие. notes по умолчанию пустая строка.
func (s *SheetsService) CreateAbsence(ctx context.Context, caller *model.Caller, in AbsencesCreateInput, meta RequestMeta) (*WriteResult, error) {
	notes := ""
	if in.Notes != nil {
		notes = *in.Notes
	}
	return s.writeForUser(ctx, caller, in.Target, gateway.ActionAbsencesCreate, in.RequestID, meta, map[string]any{
		"absence_case": in.AbsenceCase,
		"absence_date": in.AbsenceDate,
		"notes":        notes,
	})
}

// ListUserAbsences — отсутствия одного сотрудника.
func (s *SheetsService) ListUserAbsences(ctx context.Context, caller *model.Caller, t Target) (json.RawMessage, error) {
	return s.readForUser(ctx, caller, t, gateway.ActionAbsencesListUser)
}

// AbsenceCalendar — календарь отсутствий (admin/supervisor).
func (s *SheetsService) AbsenceCalendar(ctx context.Context) (json.RawMessage, error) {
	return s.gateway.Call(ctx, gateway.ActionAbsencesCalendar, map[string]any{})
}

// DeleteAbsence удаляет отсутствие (admin/supervisor).
func (s *SheetsService) DeleteAbsence(ctx context.Context, caller *model.Caller, in AbsencesDeleteInput, meta RequestMeta) (*WriteResult, error) {
	return s.write(ctx, caller, gateway.ActionAbsencesDelete, in.RequestID, meta, map[string]any{
		"absence_id": in.AbsenceID,
	})
}

// AbsenceCases — справочник причин отсутствия.
func (s *SheetsService) AbsenceCases(ctx context.Context) (json.RawMessage, error) {
	return s.gateway.Call(ctx, gateway.ActionAbsencesCases, map[string]any{})
}
