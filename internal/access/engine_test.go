package access

import (
	"context"
	"testing"
	"time"

	"fincore.org/internal/identity"
	"fincore.org/internal/ids"
)

// fakePolicies is an in-memory policy store for engine tests.
type fakePolicies struct {
	policies []Policy
}

func (f *fakePolicies) CreatePolicy(_ context.Context, p Policy) (Policy, error) {
	for _, q := range f.policies {
		if q.FromOrganizationID == p.FromOrganizationID && q.ToOrganizationID == p.ToOrganizationID &&
			q.Domain == p.Domain && q.RowType == p.RowType {
			return Policy{}, ErrPolicyConflict
		}
	}
	f.policies = append(f.policies, p)
	return p, nil
}

func (f *fakePolicies) GetPolicy(_ context.Context, customerID, id string) (Policy, error) {
	for _, p := range f.policies {
		if p.ID == id && p.CustomerID == customerID {
			return p, nil
		}
	}
	return Policy{}, ErrNotFound
}

func (f *fakePolicies) ListPolicies(_ context.Context, customerID string) ([]Policy, error) {
	var res []Policy
	for _, p := range f.policies {
		if p.CustomerID == customerID {
			res = append(res, p)
		}
	}
	return res, nil
}

func (f *fakePolicies) ListForOrganization(_ context.Context, customerID, orgID string, dir Direction) ([]Policy, error) {
	var res []Policy
	for _, p := range f.policies {
		if p.CustomerID != customerID {
			continue
		}
		if dir == DirectionFrom && p.FromOrganizationID == orgID {
			res = append(res, p)
		}
		if dir == DirectionTo && p.ToOrganizationID == orgID {
			res = append(res, p)
		}
	}
	return res, nil
}

func (f *fakePolicies) ActiveBetween(_ context.Context, fromOrgID, toOrgID, domain string) ([]Policy, error) {
	var res []Policy
	for _, p := range f.policies {
		if p.FromOrganizationID == fromOrgID && p.ToOrganizationID == toOrgID &&
			p.Domain == domain && p.Active {
			res = append(res, p)
		}
	}
	return res, nil
}

func (f *fakePolicies) UpdatePolicy(_ context.Context, customerID, id string, upd Update) (Policy, error) {
	for i, p := range f.policies {
		if p.ID != id || p.CustomerID != customerID {
			continue
		}
		if upd.Level != nil {
			p.Level = *upd.Level
		}
		if upd.Config != nil {
			p.Config = *upd.Config
		}
		if upd.Active != nil {
			p.Active = *upd.Active
		}
		if upd.ExpiresAt != nil {
			p.ExpiresAt = upd.ExpiresAt
		}
		f.policies[i] = p
		return p, nil
	}
	return Policy{}, ErrNotFound
}

func (f *fakePolicies) DeletePolicy(_ context.Context, customerID, id string) error {
	for i, p := range f.policies {
		if p.ID == id && p.CustomerID == customerID {
			f.policies = append(f.policies[:i], f.policies[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

var _ Store = (*fakePolicies)(nil)

// fakeTenants covers the tenant store calls the engine and service make;
// everything else panics via the embedded nil interface.
type fakeTenants struct {
	identity.TenantStore
	orgs        map[string]identity.Organization
	memberships map[string]identity.Membership // userID|orgID
}

func (f *fakeTenants) GetOrganization(_ context.Context, id string) (identity.Organization, error) {
	if o, ok := f.orgs[id]; ok {
		return o, nil
	}
	return identity.Organization{}, identity.ErrNotFound
}

func (f *fakeTenants) GetMembership(_ context.Context, userID, orgID string) (identity.Membership, error) {
	if m, ok := f.memberships[userID+"|"+orgID]; ok {
		return m, nil
	}
	return identity.Membership{}, identity.ErrNotFound
}

type engineFixture struct {
	engine   *Engine
	policies *fakePolicies
	tenants  *fakeTenants
	user     identity.User
	actingOrg string
	ownerOrg  string
	roleID   string
	now      time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	fx := &engineFixture{
		policies: &fakePolicies{},
		tenants: &fakeTenants{
			orgs:        map[string]identity.Organization{},
			memberships: map[string]identity.Membership{},
		},
		actingOrg: ids.New(),
		ownerOrg:  ids.New(),
		roleID:  ids.New(),
		now:     now,
	}
	customerID := ids.New()
	fx.user = identity.User{ID: ids.New(), CustomerID: customerID, Status: identity.StatusActive}
	fx.tenants.orgs[fx.actingOrg] = identity.Organization{ID: fx.actingOrg, CustomerID: customerID}
	fx.tenants.orgs[fx.ownerOrg] = identity.Organization{ID: fx.ownerOrg, CustomerID: customerID}
	fx.tenants.memberships[fx.user.ID+"|"+fx.actingOrg] = identity.Membership{
		UserID: fx.user.ID, OrganizationID: fx.actingOrg, RoleID: fx.roleID,
		Status: identity.StatusActive,
	}
	fx.engine = NewEngine(fx.policies, fx.tenants, WithEngineClock(func() time.Time { return fx.now }))
	return fx
}

// grant installs a policy letting actingOrg's members see ownerOrg's data. Note the
// stored direction: the data owner is the "from" side of the policy row.
func (fx *engineFixture) grant(p Policy) {
	p.ID = ids.New()
	p.CustomerID = fx.user.CustomerID
	p.FromOrganizationID = fx.ownerOrg
	p.ToOrganizationID = fx.actingOrg
	if p.Domain == "" {
		p.Domain = identity.DomainTreasury
	}
	fx.policies.policies = append(fx.policies.policies, p)
}

func TestCanAccessSelfAlwaysFalse(t *testing.T) {
	fx := newEngineFixture(t)
	ok, err := fx.engine.CanAccess(context.Background(), fx.user, fx.actingOrg, fx.actingOrg, identity.DomainTreasury, LevelView)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if ok {
		t.Fatal("same-organization access must be refused")
	}
}

func TestCanAccessNoPolicy(t *testing.T) {
	fx := newEngineFixture(t)
	ok, err := fx.engine.CanAccess(context.Background(), fx.user, fx.actingOrg, fx.ownerOrg, identity.DomainTreasury, LevelView)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if ok {
		t.Fatal("no policy must mean no access")
	}
}

func TestCanAccessRoleScoped(t *testing.T) {
	fx := newEngineFixture(t)
	fx.grant(Policy{
		RowType: RowTypeRole, Level: LevelEdit, Active: true,
		Config: Config{AllowedRoleIDs: []string{fx.roleID}},
	})

	ctx := context.Background()
	for _, want := range []Level{LevelView, LevelEdit} {
		ok, err := fx.engine.CanAccess(ctx, fx.user, fx.actingOrg, fx.ownerOrg, identity.DomainTreasury, want)
		if err != nil {
			t.Fatalf("CanAccess(%s): %v", want, err)
		}
		if !ok {
			t.Fatalf("edit grant must cover %s", want)
		}
	}
	ok, err := fx.engine.CanAccess(ctx, fx.user, fx.actingOrg, fx.ownerOrg, identity.DomainTreasury, LevelFull)
	if err != nil {
		t.Fatalf("CanAccess(full): %v", err)
	}
	if ok {
		t.Fatal("edit grant must not cover full")
	}
}

func TestCanAccessRoleNotInScope(t *testing.T) {
	fx := newEngineFixture(t)
	fx.grant(Policy{
		RowType: RowTypeRole, Level: LevelFull, Active: true,
		Config: Config{AllowedRoleIDs: []string{ids.New()}}, // someone else's role
	})

	ok, err := fx.engine.CanAccess(context.Background(), fx.user, fx.actingOrg, fx.ownerOrg, identity.DomainTreasury, LevelView)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if ok {
		t.Fatal("grant scoped to another role must not apply")
	}
}

func TestCanAccessRoleScopedNonMember(t *testing.T) {
	fx := newEngineFixture(t)
	delete(fx.tenants.memberships, fx.user.ID+"|"+fx.actingOrg)
	fx.grant(Policy{RowType: RowTypeRole, Level: LevelFull, Active: true})

	ok, err := fx.engine.CanAccess(context.Background(), fx.user, fx.actingOrg, fx.ownerOrg, identity.DomainTreasury, LevelView)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if ok {
		t.Fatal("role grants require membership in the acting organization")
	}
}

func TestCanAccessUserScoped(t *testing.T) {
	fx := newEngineFixture(t)
	fx.grant(Policy{
		RowType: RowTypeUser, Level: LevelView, Active: true,
		Config: Config{AllowedUserIDs: []string{fx.user.ID}},
	})

	ctx := context.Background()
	ok, err := fx.engine.CanAccess(ctx, fx.user, fx.actingOrg, fx.ownerOrg, identity.DomainTreasury, LevelView)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if !ok {
		t.Fatal("user-scoped grant must apply to the listed user")
	}

	other := identity.User{ID: ids.New(), CustomerID: fx.user.CustomerID}
	ok, err = fx.engine.CanAccess(ctx, other, fx.actingOrg, fx.ownerOrg, identity.DomainTreasury, LevelView)
	if err != nil {
		t.Fatalf("CanAccess other: %v", err)
	}
	if ok {
		t.Fatal("user-scoped grant must not apply to other users")
	}
}

func TestCanAccessEmptyScopeAppliesToAll(t *testing.T) {
	fx := newEngineFixture(t)
	fx.grant(Policy{RowType: RowTypeRole, Level: LevelView, Active: true})

	ok, err := fx.engine.CanAccess(context.Background(), fx.user, fx.actingOrg, fx.ownerOrg, identity.DomainTreasury, LevelView)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if !ok {
		t.Fatal("empty role scope must apply to any member role")
	}
}

func TestCanAccessExpiredPolicy(t *testing.T) {
	fx := newEngineFixture(t)
	expired := fx.now.Add(-time.Hour)
	fx.grant(Policy{
		RowType: RowTypeUser, Level: LevelFull, Active: true,
		Config:    Config{AllowedUserIDs: []string{fx.user.ID}},
		ExpiresAt: &expired,
	})

	ok, err := fx.engine.CanAccess(context.Background(), fx.user, fx.actingOrg, fx.ownerOrg, identity.DomainTreasury, LevelView)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if ok {
		t.Fatal("expired policy must be treated as absent")
	}

	// Same policy, not yet expired.
	future := fx.now.Add(time.Hour)
	fx.policies.policies[0].ExpiresAt = &future
	ok, err = fx.engine.CanAccess(context.Background(), fx.user, fx.actingOrg, fx.ownerOrg, identity.DomainTreasury, LevelView)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if !ok {
		t.Fatal("unexpired policy must apply")
	}
}

func TestCanAccessInactivePolicy(t *testing.T) {
	fx := newEngineFixture(t)
	fx.grant(Policy{
		RowType: RowTypeUser, Level: LevelFull, Active: false,
		Config: Config{AllowedUserIDs: []string{fx.user.ID}},
	})

	ok, err := fx.engine.CanAccess(context.Background(), fx.user, fx.actingOrg, fx.ownerOrg, identity.DomainTreasury, LevelView)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if ok {
		t.Fatal("inactive policy must not grant access")
	}
}

func TestCanAccessDomainIsolation(t *testing.T) {
	fx := newEngineFixture(t)
	fx.grant(Policy{
		Domain: identity.DomainTreasury, RowType: RowTypeUser, Level: LevelFull, Active: true,
		Config: Config{AllowedUserIDs: []string{fx.user.ID}},
	})

	ok, err := fx.engine.CanAccess(context.Background(), fx.user, fx.actingOrg, fx.ownerOrg, identity.DomainAccounting, LevelView)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if ok {
		t.Fatal("treasury grant must not open accounting")
	}
}

func TestLevelCovers(t *testing.T) {
	cases := []struct {
		have, want Level
		covers     bool
	}{
		{LevelView, LevelView, true},
		{LevelView, LevelEdit, false},
		{LevelView, LevelFull, false},
		{LevelEdit, LevelView, true},
		{LevelEdit, LevelEdit, true},
		{LevelEdit, LevelFull, false},
		{LevelFull, LevelView, true},
		{LevelFull, LevelFull, true},
		{Level("bogus"), LevelView, false},
		{LevelFull, Level("bogus"), false},
	}
	for _, tc := range cases {
		if got := tc.have.Covers(tc.want); got != tc.covers {
			t.Fatalf("%s.Covers(%s) = %v, want %v", tc.have, tc.want, got, tc.covers)
		}
	}
}
