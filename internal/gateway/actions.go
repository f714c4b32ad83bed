package gateway

import "sort"

// Имена действий Apps Script.
const (
	ActionTasksList           = "tasks_list"
	ActionTasksSetMultiple    = "tasks_set_multiple"
	ActionTasksDeleteMultiple = "tasks_delete_multiple"

	ActionVacationsListAll  = "vacations_list_all"
	ActionVacationsListUser = "vacations_list_user"
	ActionVacationsListTeam = "vacations_list_team"
	ActionVacationsSet      = "vacations_set"
	ActionVacationsDelete   = "vacations_delete"

	ActionAbsencesCreate   = "absences_create"
	ActionAbsencesListUser = "absences_list_user"
	ActionAbsencesCalendar = "absences_calendar"
	ActionAbsencesDelete   = "absences_delete"
	ActionAbsencesCases    = "absences_cases"

	ActionLogsAppend = "logs_append"
	ActionLogsQuery  = "logs_query"

	ActionAllowlistGet     = "allowlist_get"
	ActionAllowlistList    = "allowlist_list"
	ActionAllowlistUpsert  = "allowlist_upsert"
	ActionAllowlistDisable = "allowlist_disable"
)

// ActionSpec — свойства разрешённого действия.
type ActionSpec struct {
	// Write — действие изменяет данные
	Write bool
	// Retry — допустим повтор при сетевой ошибке
	Retry bool
}

var (
	read  = ActionSpec{Write: false, Retry: true}
	write = ActionSpec{Write: true, Retry: false}
)

// actions — закрытый список действий, которые можно вызвать через шлюз.
// Записи не повторяются: Apps Script не гарантирует идемпотентность.
var actions = map[string]ActionSpec{
	ActionTasksList:           read,
	ActionTasksSetMultiple:    write,
	ActionTasksDeleteMultiple: write,

	ActionVacationsListAll:  read,
	ActionVacationsListUser: read,
	ActionVacationsListTeam: read,
	ActionVacationsSet:      write,
	ActionVacationsDelete:   write,

	ActionAbsencesCreate:   write,
	ActionAbsencesListUser: read,
	ActionAbsencesCalendar: read,
	ActionAbsencesDelete:   write,
	ActionAbsencesCases:    read,

	ActionLogsAppend: write,
	ActionLogsQuery:  read,

	ActionAllowlistGet:     read,
	ActionAllowlistList:    read,
	ActionAllowlistUpsert:  write,
	ActionAllowlistDisable: write,
}

// Lookup возвращает свойства действия. ok=false — действие не разрешено.
func Lookup(action string) (ActionSpec, bool) {
	spec, ok := actions[action]
	return spec, ok
}

// Actions возвращает отсортированный список разрешённых действий.
func Actions() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
