package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"fincore.org/internal/audit"
	"fincore.org/internal/identity"
	"fincore.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := a.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.CountLogin("denied")
		handleIdentityError(w, r, err)
		return
	}
	obs.CountLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"email": strings.ToLower(strings.TrimSpace(req.Email)),
	})
	writeJSON(w, http.StatusOK, pair)
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	CompanyName string `json:"company_name"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	pair, err := a.identity.Signup(r.Context(), identity.SignupInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	obs.CountSignup()
	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{
		"email": strings.ToLower(strings.TrimSpace(req.Email)),
	})
	writeJSON(w, http.StatusCreated, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, err := a.identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	profile, err := a.identity.Profile(r.Context(), user)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleOrgContext resolves and returns the acting organization context for
// the selector header, mirroring what every scoped endpoint does internally.
func (a *API) handleOrgContext(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, oc)
}

// handleIdentityError maps identity sentinels to HTTP statuses. Organization
// existence is never revealed: not-found and no-access both yield 403.
func handleIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, identity.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, identity.ErrAccountDisabled), errors.Is(err, identity.ErrUserInactive):
		writeError(w, r, http.StatusForbidden, "account is not active")
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, "email already registered")
	case errors.Is(err, identity.ErrSlugTaken):
		writeError(w, r, http.StatusConflict, "company name is taken, try another")
	case errors.Is(err, identity.ErrNoOrganizationAvailable):
		writeError(w, r, http.StatusForbidden, "no organization available")
	case errors.Is(err, identity.ErrInvalidOrganizationID):
		writeError(w, r, http.StatusBadRequest, "invalid organization id")
	case errors.Is(err, identity.ErrOrganizationNotFound), errors.Is(err, identity.ErrAccessDenied):
		writeError(w, r, http.StatusForbidden, "no access to this organization")
	case errors.Is(err, identity.ErrAdminRequired):
		writeError(w, r, http.StatusForbidden, "customer admin required")
	case errors.Is(err, identity.ErrRoleImmutable):
		writeError(w, r, http.StatusConflict, "system roles cannot be modified")
	case errors.Is(err, identity.ErrConflict):
		writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
