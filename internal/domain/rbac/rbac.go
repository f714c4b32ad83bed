// Пакет rbac — роли пользователей и вычисление роли актора.
// Роли хранятся в user_roles и дополнительно могут приходить в claims токена.
// Повышенные права (elevated) дают роли admin и supervisor.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleUser       = "user"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий. Неизвестные роли имеют вес 0.
var roleWeight = map[string]int{
	RoleUser:       1,
	RoleSupervisor: 2,
	RoleAdmin:      3,
}

// IsElevated — есть ли в наборе admin или supervisor.
func IsElevated(roles []string) bool {
	return HasAny(roles, RoleAdmin, RoleSupervisor)
}

// ResolveActorRole возвращает роль актора для аудита в Apps Script:
// admin > supervisor > user.
func ResolveActorRole(roles []string) string {
	best := RoleUser
	for _, r := range roles {
		if r == RoleUser {
			continue
		}
		if roleWeight[r] > roleWeight[best] {
			best = r
		}
	}
	return best
}

// HasAny — пересекается ли набор ролей с требуемыми.
func HasAny(roles []string, required ...string) bool {
	set := toSet(roles)
	for _, r := range required {
		if set[r] {
			return true
		}
	}
	return false
}

// RolesFromClaims собирает роли из claim user_role и из app_metadata.user_role.
// Значение может быть строкой или массивом строк. Дубликаты удаляются,
// порядок первого появления сохраняется.
func RolesFromClaims(claims, appMetadata map[string]any) []string {
	var roles []string
	seen := make(map[string]bool)
	add := func(v any) {
		for _, r := range normalizeRoles(v) {
			if !seen[r] {
				seen[r] = true
				roles = append(roles, r)
			}
		}
	}

	if claims != nil {
		add(claims["user_role"])
	}
	if appMetadata != nil {
		add(appMetadata["user_role"])
	}
	return roles
}

// normalizeRoles приводит значение claim к срезу ролей.
func normalizeRoles(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// IsValidRole проверяет, является ли строка известной ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
