package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fincore.org/internal/access"
)

var _ access.Store = (*Store)(nil)

const policyColumns = `id, customer_id, from_organization_id, to_organization_id, domain,
	row_type, access_level, access_config, is_active, coalesce(granted_by_user_id,''),
	expires_at, created_at, updated_at`

func scanPolicy(scan func(...any) error) (access.Policy, error) {
	var p access.Policy
	var config []byte
	var expires sql.NullTime
	err := scan(&p.ID, &p.CustomerID, &p.FromOrganizationID, &p.ToOrganizationID, &p.Domain,
		&p.RowType, &p.Level, &config, &p.Active, &p.GrantedByUserID,
		&expires, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Policy{}, access.ErrNotFound
	}
	if err != nil {
		return access.Policy{}, err
	}
	if len(config) > 0 {
		_ = json.Unmarshal(config, &p.Config)
	}
	if expires.Valid {
		t := expires.Time
		p.ExpiresAt = &t
	}
	return p, nil
}

// mapPolicyConstraint translates scope and self-share violations.
func mapPolicyConstraint(err error) error {
	pge, ok := pgErr(err)
	if !ok {
		return err
	}
	switch {
	case pge.Code == "23505" && pge.ConstraintName == constraintPolicyScope:
		return fmt.Errorf("%w: duplicate grant scope", access.ErrPolicyConflict)
	case pge.Code == "23514" && pge.ConstraintName == constraintNoSelfShare:
		return fmt.Errorf("%w: organization cannot share with itself", access.ErrPolicyConflict)
	}
	return mapConstraint(err)
}

func (s *Store) CreatePolicy(ctx context.Context, p access.Policy) (access.Policy, error) {
	config, err := json.Marshal(p.Config)
	if err != nil {
		return access.Policy{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into org_access_policies(id, customer_id, from_organization_id, to_organization_id,
			domain, row_type, access_level, access_config, is_active, granted_by_user_id, expires_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,nullif($10,''),$11)`,
		p.ID, p.CustomerID, p.FromOrganizationID, p.ToOrganizationID,
		p.Domain, p.RowType, p.Level, config, p.Active, p.GrantedByUserID, p.ExpiresAt)
	if err != nil {
		return access.Policy{}, mapPolicyConstraint(err)
	}
	return p, nil
}

func (s *Store) GetPolicy(ctx context.Context, customerID, policyID string) (access.Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+policyColumns+` from org_access_policies where id=$1 and customer_id=$2`,
		policyID, customerID)
	return scanPolicy(row.Scan)
}

func (s *Store) ListPolicies(ctx context.Context, customerID string) ([]access.Policy, error) {
	return s.queryPolicies(ctx,
		`select `+policyColumns+` from org_access_policies where customer_id=$1 order by created_at asc`,
		customerID)
}

func (s *Store) ListForOrganization(ctx context.Context, customerID, orgID string, dir access.Direction) ([]access.Policy, error) {
	col := "to_organization_id"
	if dir == access.DirectionFrom {
		col = "from_organization_id"
	}
	return s.queryPolicies(ctx,
		`select `+policyColumns+` from org_access_policies
		 where customer_id=$1 and `+col+`=$2 order by created_at asc`,
		customerID, orgID)
}

func (s *Store) ActiveBetween(ctx context.Context, fromOrgID, toOrgID, domain string) ([]access.Policy, error) {
	return s.queryPolicies(ctx, `
		select `+policyColumns+` from org_access_policies
		where from_organization_id=$1 and to_organization_id=$2 and domain=$3 and is_active`,
		fromOrgID, toOrgID, domain)
}

func (s *Store) UpdatePolicy(ctx context.Context, customerID, policyID string, upd access.Update) (access.Policy, error) {
	set := []string{"updated_at=now()"}
	args := []any{policyID, customerID}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.Level != nil {
		add("access_level", *upd.Level)
	}
	if upd.Config != nil {
		config, err := json.Marshal(*upd.Config)
		if err != nil {
			return access.Policy{}, err
		}
		add("access_config", config)
	}
	if upd.Active != nil {
		add("is_active", *upd.Active)
	}
	if upd.ExpiresAt != nil {
		add("expires_at", *upd.ExpiresAt)
	}
	row := s.db.QueryRowContext(ctx,
		`update org_access_policies set `+strings.Join(set, ", ")+`
		 where id=$1 and customer_id=$2 returning `+policyColumns, args...)
	p, err := scanPolicy(row.Scan)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			return access.Policy{}, err
		}
		return access.Policy{}, mapPolicyConstraint(err)
	}
	return p, nil
}

func (s *Store) DeletePolicy(ctx context.Context, customerID, policyID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from org_access_policies where id=$1 and customer_id=$2`, policyID, customerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return access.ErrNotFound
	}
	return nil
}

func (s *Store) queryPolicies(ctx context.Context, query string, args ...any) ([]access.Policy, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []access.Policy
	for rows.Next() {
		p, err := scanPolicy(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
