package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fincore.org/internal/identity"
	"fincore.org/internal/ids"
)

// Service is the admin-facing policy surface. Every mutating call requires a
// customer admin; all reads and writes are scoped to the caller's customer.
type Service struct {
	store   Store
	tenants identity.TenantStore
	now     func() time.Time
}

// NewService builds a policy Service.
func NewService(store Store, tenants identity.TenantStore, opts ...ServiceOption) *Service {
	s := &Service{store: store, tenants: tenants, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source, for tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// CreateInput describes a new grant.
type CreateInput struct {
	FromOrganizationID string
	ToOrganizationID   string
	Domain             string
	RowType            RowType
	Level              Level
	Config             Config
	ExpiresAt          *time.Time
}

// Create registers a new grant between two organizations of the admin's
// customer.
func (s *Service) Create(ctx context.Context, actor identity.User, in CreateInput) (Policy, error) {
	if !actor.IsCustomerAdmin {
		return Policy{}, identity.ErrAdminRequired
	}
	if in.FromOrganizationID == in.ToOrganizationID {
		return Policy{}, fmt.Errorf("%w: organization cannot share with itself", ErrPolicyConflict)
	}
	if !in.RowType.Valid() || !in.Level.Valid() || in.Domain == "" {
		return Policy{}, ErrInvalidPolicy
	}
	for _, orgID := range []string{in.FromOrganizationID, in.ToOrganizationID} {
		if err := s.checkOrg(ctx, actor.CustomerID, orgID); err != nil {
			return Policy{}, err
		}
	}

	now := s.now().UTC()
	p := Policy{
		ID:                 ids.New(),
		CustomerID:         actor.CustomerID,
		FromOrganizationID: in.FromOrganizationID,
		ToOrganizationID:   in.ToOrganizationID,
		Domain:             in.Domain,
		RowType:            in.RowType,
		Level:              in.Level,
		Config:             in.Config,
		Active:             true,
		GrantedByUserID:    actor.ID,
		ExpiresAt:          in.ExpiresAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return s.store.CreatePolicy(ctx, p)
}

// Get returns one policy of the admin's customer.
func (s *Service) Get(ctx context.Context, actor identity.User, policyID string) (Policy, error) {
	if !actor.IsCustomerAdmin {
		return Policy{}, identity.ErrAdminRequired
	}
	return s.store.GetPolicy(ctx, actor.CustomerID, policyID)
}

// List returns all policies of the admin's customer.
func (s *Service) List(ctx context.Context, actor identity.User) ([]Policy, error) {
	if !actor.IsCustomerAdmin {
		return nil, identity.ErrAdminRequired
	}
	return s.store.ListPolicies(ctx, actor.CustomerID)
}

// ListForOrganization returns policies where the given organization is grantor
// or grantee, per dir.
func (s *Service) ListForOrganization(ctx context.Context, actor identity.User, orgID string, dir Direction) ([]Policy, error) {
	if !actor.IsCustomerAdmin {
		return nil, identity.ErrAdminRequired
	}
	if dir != DirectionTo && dir != DirectionFrom {
		return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidPolicy, dir)
	}
	if err := s.checkOrg(ctx, actor.CustomerID, orgID); err != nil {
		return nil, err
	}
	return s.store.ListForOrganization(ctx, actor.CustomerID, orgID, dir)
}

// Update changes a policy's level, scope config, active flag or expiry.
func (s *Service) Update(ctx context.Context, actor identity.User, policyID string, upd Update) (Policy, error) {
	if !actor.IsCustomerAdmin {
		return Policy{}, identity.ErrAdminRequired
	}
	if upd.Level != nil && !upd.Level.Valid() {
		return Policy{}, ErrInvalidPolicy
	}
	return s.store.UpdatePolicy(ctx, actor.CustomerID, policyID, upd)
}

// Delete removes a policy.
func (s *Service) Delete(ctx context.Context, actor identity.User, policyID string) error {
	if !actor.IsCustomerAdmin {
		return identity.ErrAdminRequired
	}
	return s.store.DeletePolicy(ctx, actor.CustomerID, policyID)
}

func (s *Service) checkOrg(ctx context.Context, customerID, orgID string) error {
	if !ids.Valid(orgID) {
		return identity.ErrInvalidOrganizationID
	}
	org, err := s.tenants.GetOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.ErrOrganizationNotFound
		}
		return err
	}
	if org.CustomerID != customerID {
		return identity.ErrOrganizationNotFound
	}
	return nil
}
