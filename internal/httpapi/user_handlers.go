package httpapi

import (
	"net/http"
	"strings"

	"fincore.org/internal/audit"
	"fincore.org/internal/identity"
)

// handleUsers routes /v1/users: list the customer's users and create new ones.
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		users, err := a.admin.Users(r.Context(), user)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req struct {
			Email           string `json:"email"`
			Password        string `json:"password"`
			DisplayName     string `json:"display_name"`
			IsCustomerAdmin bool   `json:"is_customer_admin"`
			OrganizationID  string `json:"organization_id"`
			RoleID          string `json:"role_id"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if len(req.Password) < 8 {
			writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
			return
		}
		created, err := a.admin.CreateUser(r.Context(), user, identity.UserInput{
			Email:           req.Email,
			Password:        req.Password,
			DisplayName:     req.DisplayName,
			IsCustomerAdmin: req.IsCustomerAdmin,
			OrganizationID:  req.OrganizationID,
			RoleID:          req.RoleID,
		})
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.created", map[string]any{
			"user_id": created.ID,
			"email":   created.Email,
		})
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleUserByID routes /v1/users/{id}, /v1/users/{id}/organizations and
// /v1/users/{id}/organizations/{orgID}.
func (a *API) handleUserByID(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	userID, sub, _ := strings.Cut(rest, "/")
	if userID == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	if sub == "organizations" || strings.HasPrefix(sub, "organizations/") {
		a.handleUserMemberships(w, r, user, userID, strings.TrimPrefix(sub, "organizations"))
		return
	}
	if sub != "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req struct {
			DisplayName     *string `json:"display_name"`
			Status          *string `json:"status"`
			IsCustomerAdmin *bool   `json:"is_customer_admin"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.admin.UpdateUser(r.Context(), user, userID, identity.UserUpdate{
			DisplayName:     req.DisplayName,
			Status:          req.Status,
			IsCustomerAdmin: req.IsCustomerAdmin,
		})
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{"user_id": userID})
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		deactivated, err := a.admin.DeactivateUser(r.Context(), user, userID)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.deactivated", map[string]any{"user_id": userID})
		writeJSON(w, http.StatusOK, deactivated)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

// handleUserMemberships serves the membership subresource. tail is "" for the
// collection or "/{orgID}" for one binding.
func (a *API) handleUserMemberships(w http.ResponseWriter, r *http.Request, actor identity.User, userID, tail string) {
	orgID := strings.TrimPrefix(tail, "/")
	if strings.Contains(orgID, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	if orgID != "" {
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if err := a.admin.RemoveMembership(r.Context(), actor, userID, orgID); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "membership.removed", map[string]any{
			"user_id":         userID,
			"organization_id": orgID,
		})
		writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		memberships, err := a.admin.Memberships(r.Context(), actor, userID)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memberships": memberships})
	case http.MethodPost:
		var req struct {
			OrganizationID string `json:"organization_id"`
			RoleID         string `json:"role_id"`
			IsDefault      bool   `json:"is_default"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		m, err := a.admin.AssignMembership(r.Context(), actor, identity.MembershipInput{
			UserID:         userID,
			OrganizationID: req.OrganizationID,
			RoleID:         req.RoleID,
			IsDefault:      req.IsDefault,
		})
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "membership.assigned", map[string]any{
			"user_id":         userID,
			"organization_id": req.OrganizationID,
			"role_id":         req.RoleID,
		})
		writeJSON(w, http.StatusCreated, m)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
