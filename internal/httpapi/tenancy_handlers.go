package httpapi

import (
	"net/http"
	"strings"

	"fincore.org/internal/audit"
	"fincore.org/internal/identity"
)

func (a *API) handleCustomer(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		customer, err := a.admin.Customer(r.Context(), user)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	case http.MethodPut:
		var req struct {
			Name      *string        `json:"name"`
			LegalName *string        `json:"legal_name"`
			Industry  *string        `json:"industry"`
			Plan      *string        `json:"plan"`
			Config    map[string]any `json:"config"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		customer, err := a.admin.UpdateCustomer(r.Context(), user, identity.CustomerUpdate{
			Name: req.Name, LegalName: req.LegalName, Industry: req.Industry,
			Plan: req.Plan, Config: req.Config,
		})
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "customer.updated", map[string]any{"customer_id": customer.ID})
		writeJSON(w, http.StatusOK, customer)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

type organizationRequest struct {
	Name                string `json:"name"`
	Code                string `json:"code"`
	LegalEntityName     string `json:"legal_entity_name"`
	Country             string `json:"country"`
	Timezone            string `json:"timezone"`
	FiscalYearEndMonth  int    `json:"fiscal_year_end_month"`
	DefaultCurrencyCode string `json:"default_currency_code"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		orgs, err := a.admin.Organizations(r.Context(), user)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
	case http.MethodPost:
		var req organizationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		org, err := a.admin.CreateOrganization(r.Context(), user, identity.OrganizationInput{
			Name:                req.Name,
			Code:                req.Code,
			LegalEntityName:     req.LegalEntityName,
			Country:             req.Country,
			Timezone:            req.Timezone,
			FiscalYearEndMonth:  req.FiscalYearEndMonth,
			DefaultCurrencyCode: req.DefaultCurrencyCode,
		})
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "organization.created", map[string]any{
			"organization_id": org.ID, "code": org.Code,
		})
		writeJSON(w, http.StatusCreated, org)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleOrganizationByID routes /v1/organizations/{id} and
// /v1/organizations/{id}/currencies.
func (a *API) handleOrganizationByID(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/organizations/")
	orgID, sub, _ := strings.Cut(rest, "/")
	if orgID == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	if sub == "currencies" {
		a.handleOrgCurrencies(w, r, user, orgID)
		return
	}
	if sub != "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req struct {
			Name                *string `json:"name"`
			LegalEntityName     *string `json:"legal_entity_name"`
			Country             *string `json:"country"`
			Timezone            *string `json:"timezone"`
			FiscalYearEndMonth  *int    `json:"fiscal_year_end_month"`
			DefaultCurrencyCode *string `json:"default_currency_code"`
			Status              *string `json:"status"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		org, err := a.admin.UpdateOrganization(r.Context(), user, orgID, identity.OrganizationUpdate{
			Name:                req.Name,
			LegalEntityName:     req.LegalEntityName,
			Country:             req.Country,
			Timezone:            req.Timezone,
			FiscalYearEndMonth:  req.FiscalYearEndMonth,
			DefaultCurrencyCode: req.DefaultCurrencyCode,
			Status:              req.Status,
		})
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "organization.updated", map[string]any{"organization_id": orgID})
		writeJSON(w, http.StatusOK, org)
	case http.MethodDelete:
		if err := a.admin.ArchiveOrganization(r.Context(), user, orgID); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "organization.archived", map[string]any{"organization_id": orgID})
		writeJSON(w, http.StatusOK, map[string]any{"status": "archived"})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleOrgCurrencies(w http.ResponseWriter, r *http.Request, user identity.User, orgID string) {
	switch r.Method {
	case http.MethodGet:
		currencies, err := a.admin.Currencies(r.Context(), user, orgID)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"currencies": currencies})
	case http.MethodPost:
		var req struct {
			CurrencyCode string `json:"currency_code"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		cur, err := a.admin.AddCurrency(r.Context(), user, orgID, req.CurrencyCode)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, cur)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		roles, err := a.admin.Roles(r.Context(), user)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		var req struct {
			Name        string                 `json:"name"`
			Description string                 `json:"description"`
			Permissions identity.PermissionMap `json:"permissions"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.admin.CreateRole(r.Context(), user, identity.RoleInput{
			Name: req.Name, Description: req.Description, Permissions: req.Permissions,
		})
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.created", map[string]any{"role_id": role.ID, "name": role.Name})
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleByID(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	roleID := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	if roleID == "" || strings.Contains(roleID, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
	case http.MethodDelete:
		if err := a.admin.DeleteRole(r.Context(), user, roleID); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.deleted", map[string]any{"role_id": roleID})
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		return
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
		return
	}
	var req struct {
		Description *string                `json:"description"`
		Permissions identity.PermissionMap `json:"permissions"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.admin.UpdateRole(r.Context(), user, roleID, identity.RoleUpdate{
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.updated", map[string]any{"role_id": roleID})
	writeJSON(w, http.StatusOK, role)
}
