// users.go — обработчики /users, /roles и /sessions.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/service"
)

type profileResponse struct {
	OK      bool           `json:"ok"`
	Profile *model.Profile `json:"profile"`
}

type profileListResponse struct {
	OK       bool             `json:"ok"`
	Profiles []*model.Profile `json:"profiles"`
}

type rolesResponse struct {
	OK     bool      `json:"ok"`
	UserID uuid.UUID `json:"userId"`
	Roles  []string  `json:"roles"`
}

type sessionResponse struct {
	OK      bool           `json:"ok"`
	Session *model.Session `json:"session"`
}

type sessionListResponse struct {
	OK       bool             `json:"ok"`
	Sessions []*model.Session `json:"sessions"`
}

// roleRequest — тело /roles/assign и /roles/revoke.
type roleRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type revokeSessionRequest struct {
	SessionID string `json:"session_id"`
}

// --- Профили ---

// GetMyProfile — GET /users/me.
func (h *APIHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.users.Profile(r.Context(), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{OK: true, Profile: p})
}

// ListProfiles — GET /users. Доступ: admin или supervisor.
func (h *APIHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.users.ListProfiles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []*model.Profile{}
	}
	writeJSON(w, http.StatusOK, profileListResponse{OK: true, Profiles: profiles})
}

// UpdateProfile — PATCH /users/{id}. Доступ: admin или supervisor.
func (h *APIHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, apierrors.BadRequest("id must be a UUID"))
		return
	}

	var patch model.ProfilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.users.UpdateProfile(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{OK: true, Profile: p})
}

// --- Роли ---

// AssignRole — POST /roles/assign. Доступ: admin.
func (h *APIHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, role, err := decodeRoleRequest(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.users.AssignRole(r.Context(), userID, role); err != nil {
		if errors.Is(err, service.ErrInvalidRole) {
			h.fail(w, r, apierrors.BadRequest("Unknown role: "+role))
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// RevokeRole — POST /roles/revoke. Доступ: admin.
func (h *APIHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, role, err := decodeRoleRequest(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.users.RevokeRole(r.Context(), userID, role); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func decodeRoleRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, error) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return uuid.Nil, "", err
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return uuid.Nil, "", apierrors.BadRequest("userId must be a UUID")
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		return uuid.Nil, "", apierrors.BadRequest("role is required")
	}
	return userID, role, nil
}

// ListRoles — GET /roles/{userId}. Свои роли или любые для admin.
func (h *APIHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, apierrors.BadRequest("userId must be a UUID"))
		return
	}

	roles, err := h.users.Roles(r.Context(), c, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rolesResponse{OK: true, UserID: userID, Roles: roles})
}

// --- Сессии ---

// RegisterSession — POST /sessions/register.
func (h *APIHandler) RegisterSession(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.users.RegisterSession(r.Context(), c, requestMeta(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{OK: true, Session: s})
}

// RevokeSession — POST /sessions/revoke.
func (h *APIHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req revokeSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		h.fail(w, r, apierrors.BadRequest(service.MsgSessionIDRequired))
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		h.fail(w, r, apierrors.BadRequest("session_id must be a UUID"))
		return
	}

	if err := h.users.RevokeSession(r.Context(), c, sessionID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ListSessions — GET /sessions/me.
func (h *APIHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sessions, err := h.users.Sessions(r.Context(), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionListResponse{OK: true, Sessions: sessions})
}
