// Package pg implements the identity and access stores on PostgreSQL via the
// pgx stdlib driver.
package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fincore.org/internal/identity"
)

// Constraint names, kept in sync with ops/migrations/sql.
const (
	constraintCustomerSlug = "customer_slug_key"
	constraintUserEmail    = "platform_user_email_key"
	constraintOrgCode      = "org_customer_code_key"
	constraintOrgCurrency  = "org_currency_key"
	constraintMembership   = "user_org_key"
	constraintPolicyScope  = "org_access_policy_scope_key"
	constraintNoSelfShare  = "ck_no_self_share"
)

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle, for tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// pgErr extracts a *pgconn.PgError from err, if any.
func pgErr(err error) (*pgconn.PgError, bool) {
	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		return pge, true
	}
	return nil, false
}

// mapConstraint translates unique and check violations into domain sentinels.
// Other errors pass through unchanged.
func mapConstraint(err error) error {
	pge, ok := pgErr(err)
	if !ok {
		return err
	}
	switch pge.Code {
	case "23505": // unique_violation
		switch pge.ConstraintName {
		case constraintUserEmail:
			return fmt.Errorf("%w: %s", identity.ErrEmailTaken, pge.ConstraintName)
		case constraintCustomerSlug, constraintOrgCode:
			return fmt.Errorf("%w: %s", identity.ErrSlugTaken, pge.ConstraintName)
		default:
			return fmt.Errorf("%w: %s", identity.ErrConflict, pge.ConstraintName)
		}
	case "23514": // check_violation
		return fmt.Errorf("%w: %s", identity.ErrConflict, pge.ConstraintName)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%w: %s", identity.ErrNotFound, pge.ConstraintName)
	}
	return err
}
