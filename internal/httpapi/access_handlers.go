package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"fincore.org/internal/access"
	"fincore.org/internal/audit"
	"fincore.org/internal/identity"
)

type policyRequest struct {
	FromOrganizationID string         `json:"from_organization_id"`
	ToOrganizationID   string         `json:"to_organization_id"`
	Domain             string         `json:"domain"`
	RowType            access.RowType `json:"row_type"`
	Level              access.Level   `json:"access_level"`
	Config             access.Config  `json:"access_config"`
	ExpiresAt          *time.Time     `json:"expires_at"`
}

// handlePolicies routes /v1/access/policies: list (optionally filtered by
// organization and direction) and create.
func (a *API) handlePolicies(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		orgID := strings.TrimSpace(q.Get("organization_id"))
		var (
			policies []access.Policy
			err      error
		)
		if orgID != "" {
			dir := access.Direction(q.Get("direction"))
			if dir == "" {
				dir = access.DirectionTo
			}
			policies, err = a.policies.ListForOrganization(r.Context(), user, orgID, dir)
		} else {
			policies, err = a.policies.List(r.Context(), user)
		}
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"policies": policies})
	case http.MethodPost:
		var req policyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		policy, err := a.policies.Create(r.Context(), user, access.CreateInput{
			FromOrganizationID: req.FromOrganizationID,
			ToOrganizationID:   req.ToOrganizationID,
			Domain:             req.Domain,
			RowType:            req.RowType,
			Level:              req.Level,
			Config:             req.Config,
			ExpiresAt:          req.ExpiresAt,
		})
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "access.policy.created", map[string]any{
			"policy_id": policy.ID,
			"from":      policy.FromOrganizationID,
			"to":        policy.ToOrganizationID,
			"domain":    policy.Domain,
		})
		writeJSON(w, http.StatusCreated, policy)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePolicyByID(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	policyID := strings.TrimPrefix(r.URL.Path, "/v1/access/policies/")
	if policyID == "" || strings.Contains(policyID, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		policy, err := a.policies.Get(r.Context(), user, policyID)
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, policy)
	case http.MethodPut:
		var req struct {
			Level     *access.Level  `json:"access_level"`
			Config    *access.Config `json:"access_config"`
			Active    *bool          `json:"is_active"`
			ExpiresAt *time.Time     `json:"expires_at"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		policy, err := a.policies.Update(r.Context(), user, policyID, access.Update{
			Level: req.Level, Config: req.Config, Active: req.Active, ExpiresAt: req.ExpiresAt,
		})
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "access.policy.updated", map[string]any{"policy_id": policyID})
		writeJSON(w, http.StatusOK, policy)
	case http.MethodDelete:
		if err := a.policies.Delete(r.Context(), user, policyID); err != nil {
			handleAccessError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "access.policy.deleted", map[string]any{"policy_id": policyID})
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleAccessCheck answers whether the caller, acting in the selected
// organization, may reach a target organization's domain data.
func (a *API) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	oc, err := a.resolveOrg(w, r, user)
	if err != nil {
		return
	}

	q := r.URL.Query()
	target := strings.TrimSpace(q.Get("target_organization_id"))
	domain := strings.TrimSpace(q.Get("domain"))
	level := access.Level(q.Get("level"))
	if level == "" {
		level = access.LevelView
	}
	if target == "" || domain == "" {
		writeError(w, r, http.StatusBadRequest, "target_organization_id and domain are required")
		return
	}
	if !level.Valid() {
		writeError(w, r, http.StatusBadRequest, "level must be view, edit or full")
		return
	}

	allowed, err := a.engine.CanAccess(r.Context(), user, oc.OrganizationID, target, domain, level)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed":                allowed,
		"organization_id":        oc.OrganizationID,
		"target_organization_id": target,
		"domain":                 domain,
		"level":                  level,
	})
}

func handleAccessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.ErrPolicyConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, access.ErrInvalidPolicy):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, access.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "policy not found")
	default:
		handleIdentityError(w, r, err)
	}
}
