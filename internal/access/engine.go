package access

import (
	"context"
	"errors"
	"time"

	"fincore.org/internal/identity"
)

// Engine answers "may this user, acting in fromOrg, reach toOrg's data for a
// domain at a given level". It gates visibility only; row filtering and
// business checks remain with the callers that consume its verdict.
type Engine struct {
	policies Store
	tenants  identity.TenantStore
	now      func() time.Time
}

// NewEngine builds an Engine over the given stores.
func NewEngine(policies Store, tenants identity.TenantStore, opts ...EngineOption) *Engine {
	e := &Engine{policies: policies, tenants: tenants, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the time source, for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// CanAccess reports whether user, acting in actingOrgID, may access
// ownerOrgID's data for domain at level want. Same-organization requests are
// always refused: access inside one's own organization is governed by role
// permissions, not by sharing policies.
func (e *Engine) CanAccess(ctx context.Context, user identity.User, actingOrgID, ownerOrgID, domain string, want Level) (bool, error) {
	if actingOrgID == ownerOrgID {
		return false, nil
	}
	if !want.Valid() {
		return false, ErrInvalidPolicy
	}

	// A policy row's from side is the data owner, its to side the grantee.
	grants, err := e.policies.ActiveBetween(ctx, ownerOrgID, actingOrgID, domain)
	if err != nil {
		return false, err
	}

	now := e.now()
	var roleChecked bool
	var roleID string
	for _, p := range grants {
		if !p.Active || p.Expired(now) {
			continue
		}
		if !p.Level.Covers(want) {
			continue
		}
		switch p.RowType {
		case RowTypeUser:
			if matchScope(p.Config.AllowedUserIDs, user.ID) {
				return true, nil
			}
		case RowTypeRole:
			if !roleChecked {
				roleChecked = true
				m, err := e.tenants.GetMembership(ctx, user.ID, actingOrgID)
				switch {
				case err == nil:
					roleID = m.RoleID
				case errors.Is(err, identity.ErrNotFound):
					// not a member of the acting org, role grants cannot apply
				default:
					return false, err
				}
			}
			if roleID != "" && matchScope(p.Config.AllowedRoleIDs, roleID) {
				return true, nil
			}
		}
	}
	return false, nil
}

// matchScope reports whether id is covered by the scope list. An empty list
// means the grant applies to everyone of that row type.
func matchScope(allowed []string, id string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == id {
			return true
		}
	}
	return false
}
