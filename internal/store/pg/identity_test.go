package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"fincore.org/internal/identity"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "customer_id", "email", "display_name", "password_hash",
		"status", "is_customer_admin", "last_login_at", "created_at", "updated_at",
	})
}

func TestGetUserByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select .* from platform_users where email=\\$1").
		WithArgs("user@example.com").
		WillReturnRows(userRows().AddRow(
			"u1", "c1", "user@example.com", "User", "$2a$10$hash",
			"active", true, nil, now, now,
		))

	u, err := store.GetUserByEmail(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.ID != "u1" || !u.IsCustomerAdmin || u.LastLoginAt != nil {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select .* from platform_users where id=\\$1").
		WithArgs("missing").
		WillReturnRows(userRows())

	if _, err := store.GetUser(context.Background(), "missing"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBootstrapCommitsFullSequence(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into customers").
		WithArgs(sqlmock.AnyArg(), "Widget Works", "widget-works", identity.DefaultPlan).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into organizations").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Widget Works - HQ", "WIDGETWORKS", "USD").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update customers set default_organization_id").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into organization_currencies").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "USD").
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, seed := range identity.SystemRoles {
		mock.ExpectQuery("insert into roles").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), seed.Name, seed.Description, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("role-" + seed.Name))
	}
	mock.ExpectExec("insert into platform_users").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "founder@example.com", "Founder", "$2a$10$hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_organizations").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "role-admin").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := store.Bootstrap(context.Background(), identity.BootstrapInput{
		Email:        "founder@example.com",
		DisplayName:  "Founder",
		PasswordHash: "$2a$10$hash",
		CustomerName: "Widget Works",
		Slug:         "widget-works",
		OrgName:      "Widget Works - HQ",
		OrgCode:      "WIDGETWORKS",
		CurrencyCode: "USD",
		Roles:        identity.SystemRoles,
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if res.User.Email != "founder@example.com" || !res.User.IsCustomerAdmin {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if res.Customer.Plan != "free" {
		t.Fatalf("plan = %q, want free", res.Customer.Plan)
	}
	if res.AdminRole.Name != identity.RoleAdmin || !res.AdminRole.IsSystem {
		t.Fatalf("unexpected admin role: %+v", res.AdminRole)
	}
	if res.Customer.DefaultOrganizationID != res.Organization.ID {
		t.Fatal("default organization not linked")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBootstrapRollsBackOnSlugConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into customers").
		WithArgs(sqlmock.AnyArg(), "Widget Works", "widget-works", identity.DefaultPlan).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: constraintCustomerSlug})
	mock.ExpectRollback()

	_, err := store.Bootstrap(context.Background(), identity.BootstrapInput{
		Email:        "founder@example.com",
		DisplayName:  "Founder",
		PasswordHash: "$2a$10$hash",
		CustomerName: "Widget Works",
		Slug:         "widget-works",
		OrgName:      "Widget Works - HQ",
		OrgCode:      "WIDGETWORKS",
		CurrencyCode: "USD",
		Roles:        identity.SystemRoles,
	})
	if !errors.Is(err, identity.ErrSlugTaken) {
		t.Fatalf("got %v, want ErrSlugTaken", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBootstrapRollsBackOnEmailConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into customers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into organizations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update customers set default_organization_id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into organization_currencies").WillReturnResult(sqlmock.NewResult(0, 1))
	for _, seed := range identity.SystemRoles {
		mock.ExpectQuery("insert into roles").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("role-" + seed.Name))
	}
	mock.ExpectExec("insert into platform_users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: constraintUserEmail})
	mock.ExpectRollback()

	_, err := store.Bootstrap(context.Background(), identity.BootstrapInput{
		Email:        "dup@example.com",
		DisplayName:  "Dup",
		PasswordHash: "$2a$10$hash",
		CustomerName: "Widget Works",
		Slug:         "widget-works",
		OrgName:      "Widget Works - HQ",
		OrgCode:      "WIDGETWORKS",
		CurrencyCode: "USD",
		Roles:        identity.SystemRoles,
	})
	if !errors.Is(err, identity.ErrEmailTaken) {
		t.Fatalf("got %v, want ErrEmailTaken", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMapConstraint(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"email unique", &pgconn.PgError{Code: "23505", ConstraintName: constraintUserEmail}, identity.ErrEmailTaken},
		{"customer slug", &pgconn.PgError{Code: "23505", ConstraintName: constraintCustomerSlug}, identity.ErrSlugTaken},
		{"org code", &pgconn.PgError{Code: "23505", ConstraintName: constraintOrgCode}, identity.ErrSlugTaken},
		{"other unique", &pgconn.PgError{Code: "23505", ConstraintName: constraintMembership}, identity.ErrConflict},
		{"check", &pgconn.PgError{Code: "23514", ConstraintName: constraintNoSelfShare}, identity.ErrConflict},
		{"fk", &pgconn.PgError{Code: "23503", ConstraintName: "user_organizations_role_id_fkey"}, identity.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapConstraint(tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("mapConstraint = %v, want %v", got, tc.want)
			}
		})
	}

	plain := errors.New("boom")
	if got := mapConstraint(plain); got != plain {
		t.Fatalf("non-pg error must pass through, got %v", got)
	}
}

func TestTouchLastLogin(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectExec("update platform_users set last_login_at").
		WithArgs("u1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.TouchLastLogin(context.Background(), "u1", at); err != nil {
		t.Fatalf("TouchLastLogin: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
