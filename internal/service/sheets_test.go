package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/legacyid"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/gateway"
)

const tasksFixture = `[
	{"id":"t1","user_id":17},
	{"id":"t2","user_id":"17"},
	{"id":"t3","user_id":42},
	"мусор"
]`

type sheetsFixture struct {
	svc      *SheetsService
	gateway  *fakeGateway
	profiles *fakeProfiles
	roles    *fakeRoles
}

func newSheetsFixture(profiles ...*model.Profile) *sheetsFixture {
	f := &sheetsFixture{
		gateway:  newFakeGateway(),
		profiles: newFakeProfiles(profiles...),
		roles:    newFakeRoles(),
	}
	f.svc = NewSheetsService(f.gateway, f.profiles, f.roles, testLogger())
	return f
}

func TestListTasks(t *testing.T) {
	ownerID := uuid.New()
	tests := []struct {
		name      string
		roles     []string
		legacyID  *int64
		wantCount int
		wantErr   string
	}{
		{"supervisor видит все задачи", []string{"supervisor"}, nil, 4, ""},
		{"пользователь видит свои", nil, ptr(int64(17)), 2, ""},
		{"чужой legacy id", []string{"user"}, ptr(int64(99)), 0, ""},
		{"без legacy id", nil, nil, 0, legacyid.MsgCallerMissingLegacyID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSheetsFixture(&model.Profile{ID: ownerID, Name: "Ana", LegacyUserID: tt.legacyID})
			f.roles.with(ownerID, tt.roles...)
			f.gateway.respond(gateway.ActionTasksList, tasksFixture)

			tasks, err := f.svc.ListTasks(context.Background(), &model.Caller{ID: ownerID})
			if tt.wantErr != "" {
				assertAPIError(t, err, http.StatusBadRequest, tt.wantErr)
				if len(f.gateway.calls) != 0 {
					t.Error("upstream вызван без legacy id")
				}
				return
			}
			if err != nil {
				t.Fatalf("ListTasks() ошибка: %v", err)
			}
			if len(tasks) != tt.wantCount {
				t.Errorf("задач = %d, ожидается %d", len(tasks), tt.wantCount)
			}
		})
	}
}

func TestListTasks_NullData(t *testing.T) {
	id := uuid.New()
	f := newSheetsFixture()
	f.roles.with(id, "admin")

	tasks, err := f.svc.ListTasks(context.Background(), &model.Caller{ID: id})
	if err != nil {
		t.Fatalf("ListTasks() ошибка: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Errorf("tasks = %v, ожидается пустой срез", tasks)
	}
}

func TestSetTasks_EnrichesPayload(t *testing.T) {
	id := uuid.New()
	f := newSheetsFixture()
	f.roles.with(id, "supervisor", "user")
	f.gateway.respond(gateway.ActionTasksSetMultiple, `{"saved":2}`)
	caller := &model.Caller{ID: id, Email: "sup@staffdesk.lan"}
	meta := RequestMeta{IP: "10.1.1.1", UserAgent: "ua"}

	out, err := f.svc.SetTasks(context.Background(), caller, TasksSetInput{
		Tasks:     []json.RawMessage{json.RawMessage(`{"id":"t1"}`)},
		RequestID: "req-1",
	}, meta)
	if err != nil {
		t.Fatalf("SetTasks() ошибка: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(out, &body); err != nil {
		t.Fatalf("ответ не объект: %v", err)
	}
	if body["saved"] != float64(2) || body["request_id"] != "req-1" {
		t.Errorf("ответ = %v, ожидается saved=2 и request_id=req-1", body)
	}

	call, _ := f.gateway.last(gateway.ActionTasksSetMultiple)
	want := map[string]any{
		"request_id":    "req-1",
		"actor_user_id": id.String(),
		"actor_email":   "sup@staffdesk.lan",
		"actor_role":    "supervisor",
		"ip":            "10.1.1.1",
		"user_agent":    "ua",
	}
	for k, v := range want {
		if call.payload[k] != v {
			t.Errorf("payload[%s] = %v, ожидается %v", k, call.payload[k], v)
		}
	}
}

func TestDeleteTasks_GeneratesRequestID(t *testing.T) {
	id := uuid.New()
	f := newSheetsFixture()
	f.gateway.respond(gateway.ActionTasksDeleteMultiple, `true`)

	out, err := f.svc.DeleteTasks(context.Background(), &model.Caller{ID: id}, TasksDeleteInput{TaskIDs: []string{"t1"}}, RequestMeta{})
	if err != nil {
		t.Fatalf("DeleteTasks() ошибка: %v", err)
	}

	var res WriteResult
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("ответ: %v", err)
	}
	if _, err := uuid.Parse(res.RequestID); err != nil {
		t.Errorf("request_id = %q, ожидается UUID", res.RequestID)
	}
	if string(res.Result) != "true" {
		t.Errorf("result = %s, ожидается true", res.Result)
	}

	call, _ := f.gateway.last(gateway.ActionTasksDeleteMultiple)
	if call.payload["actor_role"] != "user" || call.payload["actor_email"] != "" {
		t.Errorf("actor_role = %v, actor_email = %q", call.payload["actor_role"], call.payload["actor_email"])
	}
}

func TestSetVacation_Resolution(t *testing.T) {
	callerID := uuid.New()
	targetID := uuid.New()
	orphanID := uuid.New()

	tests := []struct {
		name       string
		roles      []string
		callerID   *int64
		target     Target
		wantUserID int64
		wantErr    string
	}{
		{"пользователь пишет себе", nil, ptr(int64(5)), Target{}, 5, ""},
		{"цель пользователя игнорируется", nil, ptr(int64(5)), Target{AuthUserID: &targetID}, 5, ""},
		{"admin по auth_user_id", []string{"admin"}, nil, Target{AuthUserID: &targetID}, 77, ""},
		{"supervisor по user_id", []string{"supervisor"}, nil, Target{UserID: ptr(LegacyID(31))}, 31, ""},
		{"цель без legacy id", []string{"admin"}, nil, Target{AuthUserID: &orphanID}, 0, legacyid.MsgTargetMissingLegacyID},
		{"admin без цели и без своего id", []string{"admin"}, nil, Target{}, 0, legacyid.MsgTargetRequired},
		{"пользователь без legacy id", nil, nil, Target{}, 0, legacyid.MsgCallerMissingLegacyID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSheetsFixture(
				&model.Profile{ID: callerID, Name: "Caller", LegacyUserID: tt.callerID},
				&model.Profile{ID: targetID, Name: "Target", LegacyUserID: ptr(int64(77))},
				&model.Profile{ID: orphanID, Name: "Orphan"},
			)
			f.roles.with(callerID, tt.roles...)

			res, err := f.svc.SetVacation(context.Background(), &model.Caller{ID: callerID}, VacationsSetInput{
				Target:           tt.target,
				VacationInitDate: "2026-07-01",
				VacationEndDate:  "2026-07-14",
			}, RequestMeta{})
			if tt.wantErr != "" {
				assertAPIError(t, err, http.StatusBadRequest, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("SetVacation() ошибка: %v", err)
			}
			if res.RequestID == "" {
				t.Error("request_id пустой")
			}
			call, _ := f.gateway.last(gateway.ActionVacationsSet)
			if call.payload["user_id"] != tt.wantUserID {
				t.Errorf("user_id = %v, ожидается %d", call.payload["user_id"], tt.wantUserID)
			}
		})
	}
}

func TestListUserVacations_ReadResolution(t *testing.T) {
	callerID := uuid.New()
	f := newSheetsFixture(&model.Profile{ID: callerID, Name: "Ana", LegacyUserID: ptr(int64(8))})
	f.roles.with(callerID, "admin")

	// admin без цели читает свои данные
	if _, err := f.svc.ListUserVacations(context.Background(), &model.Caller{ID: callerID}, Target{}); err != nil {
		t.Fatalf("ListUserVacations() ошибка: %v", err)
	}
	call, _ := f.gateway.last(gateway.ActionVacationsListUser)
	if call.payload["user_id"] != int64(8) {
		t.Errorf("user_id = %v, ожидается 8", call.payload["user_id"])
	}

	if _, err := f.svc.ListTeamVacations(context.Background(), &model.Caller{ID: callerID}, Target{UserID: ptr(LegacyID(12))}); err != nil {
		t.Fatalf("ListTeamVacations() ошибка: %v", err)
	}
	call, _ = f.gateway.last(gateway.ActionVacationsListTeam)
	if call.payload["user_id"] != int64(12) {
		t.Errorf("user_id = %v, ожидается 12", call.payload["user_id"])
	}
}

func TestCreateAbsence_DefaultNotes(t *testing.T) {
	id := uuid.New()
	f := newSheetsFixture(&model.Profile{ID: id, Name: "Ana", LegacyUserID: ptr(int64(3))})

	_, err := f.svc.CreateAbsence(context.Background(), &model.Caller{ID: id}, AbsencesCreateInput{
		AbsenceCase: "sick",
		AbsenceDate: "2026-03-02",
	}, RequestMeta{})
	if err != nil {
		t.Fatalf("CreateAbsence() ошибка: %v", err)
	}
	call, _ := f.gateway.last(gateway.ActionAbsencesCreate)
	if call.payload["notes"] != "" {
		t.Errorf("notes = %v, ожидается пустая строка", call.payload["notes"])
	}
	if call.payload["user_id"] != int64(3) {
		t.Errorf("user_id = %v, ожидается 3", call.payload["user_id"])
	}
}

func TestLogsPage(t *testing.T) {
	tests := []struct {
		name               string
		limit, offset      *int
		wantLimit, wantOff int
	}{
		{"по умолчанию", nil, nil, 100, 0},
		{"в пределах", ptr(50), ptr(10), 50, 10},
		{"больше максимума", ptr(1000), nil, 500, 0},
		{"ноль и отрицательный offset", ptr(0), ptr(-5), 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, o := logsPage(tt.limit, tt.offset)
			if l != tt.wantLimit || o != tt.wantOff {
				t.Errorf("logsPage() = %d, %d, ожидается %d, %d", l, o, tt.wantLimit, tt.wantOff)
			}
		})
	}
}

func TestQueryLogs_NullFilters(t *testing.T) {
	f := newSheetsFixture()
	if _, err := f.svc.QueryLogs(context.Background(), LogsQueryInput{Action: ptr("LOGIN")}); err != nil {
		t.Fatalf("QueryLogs() ошибка: %v", err)
	}
	call, _ := f.gateway.last(gateway.ActionLogsQuery)
	body, _ := json.Marshal(call.payload)

	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)
	if v, ok := decoded["from"]; !ok || v != nil {
		t.Errorf("from = %v, ожидается null", v)
	}
	if decoded["action"] != "LOGIN" || decoded["limit"] != float64(100) {
		t.Errorf("payload = %v", decoded)
	}
}

func TestAllowlistWrites(t *testing.T) {
	id := uuid.New()
	f := newSheetsFixture()
	f.roles.with(id, "admin")
	caller := &model.Caller{ID: id, Email: "admin@staffdesk.lan"}

	_, err := f.svc.UpsertAllowlist(context.Background(), caller, AllowlistUpsertInput{
		Email:     "ana@staffdesk.lan",
		Enabled:   ptr(true),
		RequestID: "req-7",
	}, RequestMeta{})
	if err != nil {
		t.Fatalf("UpsertAllowlist() ошибка: %v", err)
	}
	call, _ := f.gateway.last(gateway.ActionAllowlistUpsert)
	if _, ok := call.payload["notes"]; ok {
		t.Error("незаданное поле notes передано в payload")
	}
	if call.payload["enabled"] != true || call.payload["request_id"] != "req-7" {
		t.Errorf("payload = %v", call.payload)
	}

	res, err := f.svc.DisableAllowlist(context.Background(), caller, "ana@staffdesk.lan", RequestMeta{})
	if err != nil {
		t.Fatalf("DisableAllowlist() ошибка: %v", err)
	}
	if res.RequestID == "req-7" || res.RequestID == "" {
		t.Errorf("request_id = %q, ожидается новый UUID", res.RequestID)
	}
	call, _ = f.gateway.last(gateway.ActionAllowlistDisable)
	if call.payload["actor_role"] != "admin" {
		t.Errorf("actor_role = %v, ожидается admin", call.payload["actor_role"])
	}
}

func TestLegacyID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    *LegacyID
		wantErr bool
	}{
		{`{"user_id":17}`, ptr(LegacyID(17)), false},
		{`{"user_id":"17"}`, ptr(LegacyID(17)), false},
		{`{"user_id":null}`, nil, false},
		{`{}`, nil, false},
		{`{"user_id":"abc"}`, nil, true},
		{`{"user_id":1.5}`, nil, true},
	}
	for _, tt := range tests {
		var target Target
		err := json.Unmarshal([]byte(tt.in), &target)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) ошибка = %v, ожидается ошибка: %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if (target.UserID == nil) != (tt.want == nil) || (tt.want != nil && *target.UserID != *tt.want) {
			t.Errorf("Unmarshal(%s) = %v, ожидается %v", tt.in, target.UserID, tt.want)
		}
	}
}
