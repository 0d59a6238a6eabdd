package identity

import (
	"context"
	"errors"

	"fincore.org/internal/ids"
)

// OrgContext is the resolved per-request organization context. Every domain
// module scopes its queries by OrganizationID and checks Permissions before
// mutating. RoleName is empty on the customer-admin override path.
type OrgContext struct {
	OrganizationID string        `json:"organization_id"`
	Organization   Organization  `json:"organization"`
	RoleName       string        `json:"role_name,omitempty"`
	IsMember       bool          `json:"is_member"`
	Permissions    PermissionMap `json:"permissions"`
}

// ContextResolver turns a verified user plus an optional organization selector
// into an OrgContext. Resolution happens on every request and is never cached:
// selection can vary request-to-request for a user with several memberships.
type ContextResolver struct {
	store TenantStore
}

// NewContextResolver constructs a resolver over the tenant store.
func NewContextResolver(store TenantStore) (*ContextResolver, error) {
	if store == nil {
		return nil, errors.New("identity: tenant store is required")
	}
	return &ContextResolver{store: store}, nil
}

// Resolve applies the selection algorithm:
//
//  1. no selector → the user's is_default membership, or ErrNoOrganizationAvailable;
//  2. malformed selector → ErrInvalidOrganizationID;
//  3. org missing or owned by another customer → ErrOrganizationNotFound (403,
//     existence is not revealed to non-members);
//  4. no active membership and not customer admin → ErrAccessDenied. Customer
//     admins reach any organization under their own customer without a
//     membership row; that override is distinct from cross-org data sharing.
func (r *ContextResolver) Resolve(ctx context.Context, user User, selector string) (OrgContext, error) {
	if selector == "" {
		def, err := r.store.DefaultMembership(ctx, user.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return OrgContext{}, ErrNoOrganizationAvailable
			}
			return OrgContext{}, err
		}
		selector = def.OrganizationID
	}
	if !ids.Valid(selector) {
		return OrgContext{}, ErrInvalidOrganizationID
	}

	org, err := r.store.GetOrganization(ctx, selector)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return OrgContext{}, ErrOrganizationNotFound
		}
		return OrgContext{}, err
	}
	if org.CustomerID != user.CustomerID {
		return OrgContext{}, ErrOrganizationNotFound
	}

	membership, err := r.store.GetMembership(ctx, user.ID, org.ID)
	switch {
	case err == nil:
		role, err := r.store.GetRole(ctx, membership.RoleID)
		if err != nil {
			return OrgContext{}, err
		}
		return OrgContext{
			OrganizationID: org.ID,
			Organization:   org,
			RoleName:       role.Name,
			IsMember:       true,
			Permissions:    role.Permissions.Clone(),
		}, nil
	case errors.Is(err, ErrNotFound):
		if !user.IsCustomerAdmin {
			return OrgContext{}, ErrAccessDenied
		}
		// Admin override: no membership row, full permissions within the
		// admin's own customer.
		return OrgContext{
			OrganizationID: org.ID,
			Organization:   org,
			IsMember:       false,
			Permissions:    AdminPermissions(),
		}, nil
	default:
		return OrgContext{}, err
	}
}
