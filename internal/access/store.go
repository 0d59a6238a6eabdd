package access

import "context"

// Store persists cross-organization access policies.
type Store interface {
	CreatePolicy(ctx context.Context, p Policy) (Policy, error)
	GetPolicy(ctx context.Context, customerID, policyID string) (Policy, error)
	ListPolicies(ctx context.Context, customerID string) ([]Policy, error)
	// ListForOrganization returns policies where orgID is on the given side.
	ListForOrganization(ctx context.Context, customerID, orgID string, dir Direction) ([]Policy, error)
	// ActiveBetween returns active grants from fromOrg to toOrg for the domain.
	// Expiry filtering is left to the caller so clock injection stays in one place.
	ActiveBetween(ctx context.Context, fromOrgID, toOrgID, domain string) ([]Policy, error)
	UpdatePolicy(ctx context.Context, customerID, policyID string, upd Update) (Policy, error)
	DeletePolicy(ctx context.Context, customerID, policyID string) error
}
