package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"fincore.org/internal/access"
)

func policyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "customer_id", "from_organization_id", "to_organization_id", "domain",
		"row_type", "access_level", "access_config", "is_active", "granted_by_user_id",
		"expires_at", "created_at", "updated_at",
	})
}

func TestCreatePolicyMapsScopeConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into org_access_policies").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: constraintPolicyScope})

	_, err := store.CreatePolicy(context.Background(), access.Policy{
		ID: "p1", CustomerID: "c1",
		FromOrganizationID: "o1", ToOrganizationID: "o2",
		Domain: "treasury", RowType: access.RowTypeRole, Level: access.LevelView, Active: true,
	})
	if !errors.Is(err, access.ErrPolicyConflict) {
		t.Fatalf("got %v, want ErrPolicyConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreatePolicyMapsSelfShareCheck(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into org_access_policies").
		WillReturnError(&pgconn.PgError{Code: "23514", ConstraintName: constraintNoSelfShare})

	_, err := store.CreatePolicy(context.Background(), access.Policy{
		ID: "p1", CustomerID: "c1",
		FromOrganizationID: "o1", ToOrganizationID: "o1",
		Domain: "treasury", RowType: access.RowTypeRole, Level: access.LevelView,
	})
	if !errors.Is(err, access.ErrPolicyConflict) {
		t.Fatalf("got %v, want ErrPolicyConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestActiveBetweenScans(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	expires := now.Add(time.Hour)

	mock.ExpectQuery("select .* from org_access_policies").
		WithArgs("o1", "o2", "treasury").
		WillReturnRows(policyRows().AddRow(
			"p1", "c1", "o1", "o2", "treasury",
			"role", "edit", []byte(`{"allowed_role_ids":["r1"]}`), true, "u1",
			expires, now, now,
		))

	policies, err := store.ActiveBetween(context.Background(), "o1", "o2", "treasury")
	if err != nil {
		t.Fatalf("ActiveBetween: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("policies = %d, want 1", len(policies))
	}
	p := policies[0]
	if p.Level != access.LevelEdit || p.RowType != access.RowTypeRole {
		t.Fatalf("unexpected policy: %+v", p)
	}
	if len(p.Config.AllowedRoleIDs) != 1 || p.Config.AllowedRoleIDs[0] != "r1" {
		t.Fatalf("config not decoded: %+v", p.Config)
	}
	if p.ExpiresAt == nil || !p.ExpiresAt.Equal(expires) {
		t.Fatalf("expiry not decoded: %v", p.ExpiresAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeletePolicyNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from org_access_policies").
		WithArgs("missing", "c1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeletePolicy(context.Background(), "c1", "missing"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
