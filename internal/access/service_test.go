package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"fincore.org/internal/identity"
	"fincore.org/internal/ids"
)

type serviceFixture struct {
	svc      *Service
	policies *fakePolicies
	admin    identity.User
	member   identity.User
	orgA     string
	orgB     string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	fx := &serviceFixture{
		policies: &fakePolicies{},
		orgA:     ids.New(),
		orgB:     ids.New(),
	}
	customerID := ids.New()
	fx.admin = identity.User{ID: ids.New(), CustomerID: customerID, IsCustomerAdmin: true}
	fx.member = identity.User{ID: ids.New(), CustomerID: customerID}
	tenants := &fakeTenants{
		orgs: map[string]identity.Organization{
			fx.orgA: {ID: fx.orgA, CustomerID: customerID},
			fx.orgB: {ID: fx.orgB, CustomerID: customerID},
		},
		memberships: map[string]identity.Membership{},
	}
	fx.svc = NewService(fx.policies, tenants, WithServiceClock(func() time.Time {
		return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	}))
	return fx
}

func validInput(fx *serviceFixture) CreateInput {
	return CreateInput{
		FromOrganizationID: fx.orgA,
		ToOrganizationID:   fx.orgB,
		Domain:             identity.DomainTreasury,
		RowType:            RowTypeRole,
		Level:              LevelView,
	}
}

func TestCreatePolicy(t *testing.T) {
	fx := newServiceFixture(t)

	p, err := fx.svc.Create(context.Background(), fx.admin, validInput(fx))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" || !p.Active {
		t.Fatalf("unexpected policy: %+v", p)
	}
	if p.CustomerID != fx.admin.CustomerID || p.GrantedByUserID != fx.admin.ID {
		t.Fatalf("ownership not recorded: %+v", p)
	}
}

func TestCreatePolicyRequiresAdmin(t *testing.T) {
	fx := newServiceFixture(t)
	if _, err := fx.svc.Create(context.Background(), fx.member, validInput(fx)); !errors.Is(err, identity.ErrAdminRequired) {
		t.Fatalf("got %v, want ErrAdminRequired", err)
	}
}

func TestCreatePolicyRejectsSelfShare(t *testing.T) {
	fx := newServiceFixture(t)
	in := validInput(fx)
	in.ToOrganizationID = in.FromOrganizationID
	if _, err := fx.svc.Create(context.Background(), fx.admin, in); !errors.Is(err, ErrPolicyConflict) {
		t.Fatalf("got %v, want ErrPolicyConflict", err)
	}
}

func TestCreatePolicyValidation(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	in := validInput(fx)
	in.RowType = RowType("group")
	if _, err := fx.svc.Create(ctx, fx.admin, in); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("bad row type: got %v", err)
	}

	in = validInput(fx)
	in.Level = Level("superuser")
	if _, err := fx.svc.Create(ctx, fx.admin, in); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("bad level: got %v", err)
	}

	in = validInput(fx)
	in.Domain = ""
	if _, err := fx.svc.Create(ctx, fx.admin, in); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("empty domain: got %v", err)
	}
}

func TestCreatePolicyForeignOrganization(t *testing.T) {
	fx := newServiceFixture(t)
	in := validInput(fx)
	in.ToOrganizationID = ids.New() // not under this customer
	if _, err := fx.svc.Create(context.Background(), fx.admin, in); !errors.Is(err, identity.ErrOrganizationNotFound) {
		t.Fatalf("got %v, want ErrOrganizationNotFound", err)
	}

	in = validInput(fx)
	in.FromOrganizationID = "not-an-id"
	if _, err := fx.svc.Create(context.Background(), fx.admin, in); !errors.Is(err, identity.ErrInvalidOrganizationID) {
		t.Fatalf("got %v, want ErrInvalidOrganizationID", err)
	}
}

func TestCreatePolicyDuplicateScope(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	if _, err := fx.svc.Create(ctx, fx.admin, validInput(fx)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := fx.svc.Create(ctx, fx.admin, validInput(fx)); !errors.Is(err, ErrPolicyConflict) {
		t.Fatalf("got %v, want ErrPolicyConflict", err)
	}
}

func TestUpdateAndDeletePolicy(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	p, err := fx.svc.Create(ctx, fx.admin, validInput(fx))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	lvl := LevelFull
	inactive := false
	updated, err := fx.svc.Update(ctx, fx.admin, p.ID, Update{Level: &lvl, Active: &inactive})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Level != LevelFull || updated.Active {
		t.Fatalf("update not applied: %+v", updated)
	}

	bad := Level("root")
	if _, err := fx.svc.Update(ctx, fx.admin, p.ID, Update{Level: &bad}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("got %v, want ErrInvalidPolicy", err)
	}

	if _, err := fx.svc.Update(ctx, fx.member, p.ID, Update{Level: &lvl}); !errors.Is(err, identity.ErrAdminRequired) {
		t.Fatalf("got %v, want ErrAdminRequired", err)
	}

	if err := fx.svc.Delete(ctx, fx.admin, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := fx.svc.Get(ctx, fx.admin, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound after delete", err)
	}
}

func TestListForOrganizationDirections(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	if _, err := fx.svc.Create(ctx, fx.admin, validInput(fx)); err != nil {
		t.Fatalf("create: %v", err)
	}

	from, err := fx.svc.ListForOrganization(ctx, fx.admin, fx.orgA, DirectionFrom)
	if err != nil {
		t.Fatalf("list from: %v", err)
	}
	if len(from) != 1 {
		t.Fatalf("from = %d, want 1", len(from))
	}

	to, err := fx.svc.ListForOrganization(ctx, fx.admin, fx.orgA, DirectionTo)
	if err != nil {
		t.Fatalf("list to: %v", err)
	}
	if len(to) != 0 {
		t.Fatalf("to = %d, want 0", len(to))
	}

	if _, err := fx.svc.ListForOrganization(ctx, fx.admin, fx.orgA, Direction("sideways")); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("got %v, want ErrInvalidPolicy", err)
	}
}
