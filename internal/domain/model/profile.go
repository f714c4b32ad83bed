// Пакет model — доменные модели BFF Gateway.
package model

import (
	"time"

	"github.com/google/uuid"
)

// StatusActive — статус профиля по умолчанию.
const StatusActive = "Activo"

// Profile — профиль сотрудника. Хранится в таблице user_profiles.
// ID совпадает с идентификатором пользователя в IdP.
type Profile struct {
	ID uuid.UUID `json:"id"`
	// LegacyUserID — единственный ключ сопоставления с данными в Apps Script
	LegacyUserID  *int64    `json:"legacy_user_id"`
	PeopleforceID *string   `json:"peopleforce_id"`
	Name          string    `json:"name"`
	Meli          *string   `json:"meli"`
	Status        string    `json:"status"`
	StatusDetail  *string   `json:"status_detail"`
	Team          *string   `json:"team"`
	Leader        *string   `json:"leader"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasLegacyID — задан ли legacy_user_id. Ноль считается отсутствием значения.
func (p *Profile) HasLegacyID() bool {
	return p != nil && p.LegacyUserID != nil && *p.LegacyUserID != 0
}

// ProfilePatch — частичное обновление профиля.
// nil-поля не изменяются.
type ProfilePatch struct {
	LegacyUserID  *int64  `json:"legacy_user_id,omitempty"`
	PeopleforceID *string `json:"peopleforce_id,omitempty"`
	Name          *string `json:"name,omitempty"`
	Meli          *string `json:"meli,omitempty"`
	Status        *string `json:"status,omitempty"`
	StatusDetail  *string `json:"status_detail,omitempty"`
	Team          *string `json:"team,omitempty"`
	Leader        *string `json:"leader,omitempty"`
}

// IsEmpty — в патче нет ни одного поля.
func (p ProfilePatch) IsEmpty() bool {
	return p.LegacyUserID == nil && p.PeopleforceID == nil && p.Name == nil &&
		p.Meli == nil && p.Status == nil && p.StatusDetail == nil &&
		p.Team == nil && p.Leader == nil
}
