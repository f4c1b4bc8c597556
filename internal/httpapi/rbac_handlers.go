package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"adminkit.org/internal/audit"
	"adminkit.org/internal/auth"
	"adminkit.org/internal/obs"
)

type createUserRequest struct {
	Name     string   `json:"name" validate:"required,min=5"`
	Username string   `json:"username" validate:"required,min=5"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"omitempty,min=6"`
	Status   string   `json:"status" validate:"omitempty,oneof=active disabled"`
	RoleIDs  []string `json:"role_ids"`
}

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=5"`
	Username *string `json:"username" validate:"omitempty,min=5"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Status   *string `json:"status" validate:"omitempty,oneof=active disabled"`
	Password *string `json:"password" validate:"omitempty,min=6"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=4"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=4"`
	Description *string `json:"description"`
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id" validate:"required"`
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit "+err.Error())
		return
	}
	offset, err := parsePositiveInt(q.Get("offset"), 0, 0, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset "+err.Error())
		return
	}
	users, err := a.svc.ListUsers(r.Context(), auth.ListFilter{Search: q.Get("search"), Limit: limit, Offset: offset})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []auth.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  users,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	user, err := a.svc.CreateUser(r.Context(), req.Name, req.Username, req.Email, req.Password, req.Status, req.RoleIDs)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r, "rbac.user.create", "user", user.ID, map[string]string{
		"username": user.Username,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "id")
	user, err := a.svc.UpdateUser(r.Context(), userID, auth.UserUpdate{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Status:   req.Status,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if req.Password != nil {
		a.endSessions(r, userID)
	}
	a.audit(r, "rbac.user.update", "user", userID, map[string]string{
		"password_changed": strconv.FormatBool(req.Password != nil),
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if self, ok := auth.UserIDFromContext(r.Context()); ok && self == userID {
		writeError(w, r, http.StatusBadRequest, "cannot delete the signed-in user")
		return
	}
	if err := a.svc.DeleteUser(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r, "rbac.user.delete", "user", userID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) changeOwnPassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := a.svc.SetUserPassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.endSessions(r, userID)
	a.audit(r, "auth.password.change", "user", userID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "id")
	assignment, err := a.svc.AssignRoleToUser(r.Context(), userID, req.RoleID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r, "rbac.user.assign_role", "user", userID, map[string]string{
		"role_id": assignment.RoleID,
	})
	writeJSON(w, http.StatusCreated, assignment)
}

func (a *API) removeRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	roleID := chi.URLParam(r, "roleID")
	if err := a.svc.RemoveRoleAssignment(r.Context(), userID, roleID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r, "rbac.user.remove_role", "user", userID, map[string]string{
		"role_id": roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.svc.ListRoles(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": roles})
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := a.svc.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	role, err := a.svc.CreateRole(r.Context(), req.Name, req.Description, req.Permissions)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r, "rbac.role.create", "role", role.ID, map[string]string{
		"name": role.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	roleID := chi.URLParam(r, "id")
	role, err := a.svc.UpdateRole(r.Context(), roleID, auth.RoleUpdate{Name: req.Name, Description: req.Description})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r, "rbac.role.update", "role", roleID, nil)
	writeJSON(w, http.StatusOK, role)
}

func (a *API) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionsRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	roleID := chi.URLParam(r, "id")
	if err := a.svc.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		handleServiceError(w, r, err)
		return
	}
	role, err := a.svc.GetRole(r.Context(), roleID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r, "rbac.role.permissions.update", "role", roleID, map[string]string{
		"count": strconv.Itoa(len(role.Permissions)),
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	if err := a.svc.DeleteRole(r.Context(), roleID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r, "rbac.role.delete", "role", roleID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// endSessions revokes every token of userID after a credential change.
func (a *API) endSessions(r *http.Request, userID string) {
	if err := a.sessions.EndAll(r.Context(), userID); err != nil {
		obs.Logger().Error("session revocation failed", "user_id", userID, "error", err)
	}
}

func (a *API) audit(r *http.Request, event, resourceType, resourceID string, extra map[string]string) {
	entry := auth.AuditEntry{
		Event:        event,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Fields:       extra,
	}
	if err := audit.Record(r.Context(), a.svc, entry); err != nil {
		obs.Logger().Warn("audit record failed", "event", event, "error", err)
	}
}

func (a *API) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit "+err.Error())
		return
	}
	offset, err := parsePositiveInt(q.Get("offset"), 0, 0, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset "+err.Error())
		return
	}
	entries, err := a.svc.ListAudit(r.Context(), auth.AuditFilter{
		ActorID: q.Get("actor_id"),
		Event:   q.Get("event"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []auth.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  entries,
		"limit":  limit,
		"offset": offset,
	})
}
