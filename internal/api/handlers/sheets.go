// sheets.go — обработчики /sheets/*, /logs и /allowlist.
// Ответ: {"ok": true, "data": ...}.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/service"
)

type emailRequest struct {
	Email string `json:"email"`
}

// withCaller извлекает пользователя и тело запроса, затем вызывает fn.
// Ошибки разбора и сервиса сериализуются единообразно.
func withCaller[T any](h *APIHandler, w http.ResponseWriter, r *http.Request, validate func(*T) error, fn func(c *model.Caller, in T) (any, error)) {
	c, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in T
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if validate != nil {
		if err := validate(&in); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	data, err := fn(c, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, data)
}

// noBody — операции без тела запроса.
type noBody struct{}

func required(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return apierrors.BadRequest(field + " is required")
	}
	return nil
}

// --- Задачи ---

// ListTasks — POST /sheets/tasks/list.
func (h *APIHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	withCaller(h, w, r, nil, func(c *model.Caller, _ noBody) (any, error) {
		return h.sheets.ListTasks(r.Context(), c)
	})
}

// SetTasks — POST /sheets/tasks/set-multiple. Доступ: admin или supervisor.
func (h *APIHandler) SetTasks(w http.ResponseWriter, r *http.Request) {
	validate := func(in *service.TasksSetInput) error {
		if in.Tasks == nil {
			return apierrors.BadRequest("tasks must be an array")
		}
		return nil
	}
	withCaller(h, w, r, validate, func(c *model.Caller, in service.TasksSetInput) (any, error) {
		return h.sheets.SetTasks(r.Context(), c, in, requestMeta(r))
	})
}

// DeleteTasks — POST /sheets/tasks/delete-multiple. Доступ: admin или supervisor.
func (h *APIHandler) DeleteTasks(w http.ResponseWriter, r *http.Request) {
	validate := func(in *service.TasksDeleteInput) error {
		if in.TaskIDs == nil {
			return apierrors.BadRequest("task_ids must be an array")
		}
		return nil
	}
	withCaller(h, w, r, validate, func(c *model.Caller, in service.TasksDeleteInput) (any, error) {
		return h.sheets.DeleteTasks(r.Context(), c, in, requestMeta(r))
	})
}

// --- Отпуска ---

// ListAllVacations — POST /sheets/vacations/list-all. Доступ: admin или supervisor.
func (h *APIHandler) ListAllVacations(w http.ResponseWriter, r *http.Request) {
	withCaller(h, w, r, nil, func(_ *model.Caller, _ noBody) (any, error) {
		return h.sheets.ListAllVacations(r.Context())
	})
}

// ListUserVacations — POST /sheets/vacations/list-user.
func (h *APIHandler) ListUserVacations(w http.ResponseWriter, r *http.Request) {
	withCaller(h, w, r, nil, func(c *model.Caller, t service.Target) (any, error) {
		return h.sheets.ListUserVacations(r.Context(), c, t)
	})
}

// ListTeamVacations — POST /sheets/vacations/list-team.
func (h *APIHandler) ListTeamVacations(w http.ResponseWriter, r *http.Request) {
	withCaller(h, w, r, nil, func(c *model.Caller, t service.Target) (any, error) {
		return h.sheets.ListTeamVacations(r.Context(), c, t)
	})
}

// SetVacation — POST /sheets/vacations/set.
func (h *APIHandler) SetVacation(w http.ResponseWriter, r *http.Request) {
	validate := func(in *service.VacationsSetInput) error {
		if err := required(in.VacationInitDate, "vacation_init_date"); err != nil {
			return err
		}
		return required(in.VacationEndDate, "vacation_end_date")
	}
	withCaller(h, w, r, validate, func(c *model.Caller, in service.VacationsSetInput) (any, error) {
		return h.sheets.SetVacation(r.Context(), c, in, requestMeta(r))
	})
}

// DeleteVacation — POST /sheets/vacations/delete. Доступ: admin или supervisor.
func (h *APIHandler) DeleteVacation(w http.ResponseWriter, r *http.Request) {
	validate := func(in *service.VacationsDeleteInput) error {
		return required(in.VacationID, "vacation_id")
	}
	withCaller(h, w, r, validate, func(c *model.Caller, in service.VacationsDeleteInput) (any, error) {
		return h.sheets.DeleteVacation(r.Context(), c, in, requestMeta(r))
	})
}

// --- Отсутствия ---

// CreateAbsence — POST /sheets/absences/create.
func (h *APIHandler) CreateAbsence(w http.ResponseWriter, r *http.Request) {
	validate := func(in *service.AbsencesCreateInput) error {
		if err := required(in.AbsenceCase, "absence_case"); err != nil {
			return err
		}
		return required(in.AbsenceDate, "absence_date")
	}
	withCaller(h, w, r, validate, func(c *model.Caller, in service.AbsencesCreateInput) (any, error) {
		return h.sheets.CreateAbsence(r.Context(), c, in, requestMeta(r))
	})
}

// ListUserAbsences — POST /sheets/absences/list-user.
func (h *APIHandler) ListUserAbsences(w http.ResponseWriter, r *http.Request) {
	withCaller(h, w, r, nil, func(c *model.Caller, t service.Target) (any, error) {
		return h.sheets.ListUserAbsences(r.Context(), c, t)
	})
}

// AbsenceCalendar — POST /sheets/absences/calendar. Доступ: admin или supervisor.
func (h *APIHandler) AbsenceCalendar(w http.ResponseWriter, r *http.Request) {
	withCaller(h, w, r, nil, func(_ *model.Caller, _ noBody) (any, error) {
		return h.sheets.AbsenceCalendar(r.Context())
	})
}

// DeleteAbsence — POST /sheets/absences/delete. Доступ: admin или supervisor.
func (h *APIHandler) DeleteAbsence(w http.ResponseWriter, r *http.Request) {
	validate := func(in *service.AbsencesDeleteInput) error {
		return required(in.AbsenceID, "absence_id")
	}
	withCaller(h, w, r, validate, func(c *model.Caller, in service.AbsencesDeleteInput) (any, error) {
		return h.sheets.DeleteAbsence(r.Context(), c, in, requestMeta(r))
	})
}

// AbsenceCases — POST /sheets/absences/cases.
func (h *APIHandler) AbsenceCases(w http.ResponseWriter, r *http.Request) {
	withCaller(h, w, r, nil, func(_ *model.Caller, _ noBody) (any, error) {
		return h.sheets.AbsenceCases(r.Context())
	})
}

// --- Журнал ---

// QueryLogs — POST /logs/query. Доступ: admin или supervisor.
func (h *APIHandler) QueryLogs(w http.ResponseWriter, r *http.Request) {
	withCaller(h, w, r, nil, func(_ *model.Caller, in service.LogsQueryInput) (any, error) {
		return h.sheets.QueryLogs(r.Context(), in)
	})
}

// --- Allowlist ---

// GetAllowlistEntry — POST /allowlist/get. Доступ: admin.
func (h *APIHandler) GetAllowlistEntry(w http.ResponseWriter, r *http.Request) {
	validate := func(in *emailRequest) error { return requireEmail(in.Email) }
	withCaller(h, w, r, validate, func(_ *model.Caller, in emailRequest) (any, error) {
		return h.sheets.GetAllowlistEntry(r.Context(), in.Email)
	})
}

// ListAllowlist — POST /allowlist/list. Доступ: admin.
func (h *APIHandler) ListAllowlist(w http.ResponseWriter, r *http.Request) {
	withCaller(h, w, r, nil, func(_ *model.Caller, _ noBody) (any, error) {
		return h.sheets.ListAllowlist(r.Context())
	})
}

// UpsertAllowlist — POST /allowlist/upsert. Доступ: admin.
func (h *APIHandler) UpsertAllowlist(w http.ResponseWriter, r *http.Request) {
	validate := func(in *service.AllowlistUpsertInput) error { return requireEmail(in.Email) }
	withCaller(h, w, r, validate, func(c *model.Caller, in service.AllowlistUpsertInput) (any, error) {
		return h.sheets.UpsertAllowlist(r.Context(), c, in, requestMeta(r))
	})
}

// DisableAllowlist — POST /allowlist/disable. Доступ: admin.
func (h *APIHandler) DisableAllowlist(w http.ResponseWriter, r *http.Request) {
	validate := func(in *emailRequest) error { return requireEmail(in.Email) }
	withCaller(h, w, r, validate, func(c *model.Caller, in emailRequest) (any, error) {
		return h.sheets.DisableAllowlist(r.Context(), c, in.Email, requestMeta(r))
	})
}

// rawOrNull — пустой ответ upstream сериализуется как null.
func rawOrNull(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return data
}
