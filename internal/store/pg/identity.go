package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fincore.org/internal/identity"
	"fincore.org/internal/ids"
)

var _ identity.TenantStore = (*Store)(nil)

// Users ---------------------------------------------------------------------

const userColumns = `id, customer_id, email, display_name, password_hash, status, is_customer_admin, last_login_at, created_at, updated_at`

func scanUser(row *sql.Row) (identity.User, error) {
	var u identity.User
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.CustomerID, &u.Email, &u.DisplayName, &u.PasswordHash,
		&u.Status, &u.IsCustomerAdmin, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (identity.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from platform_users where id=$1`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (identity.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from platform_users where email=$1`, email))
}

func (s *Store) ListUsers(ctx context.Context, customerID string) ([]identity.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from platform_users where customer_id=$1 order by created_at asc`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []identity.User
	for rows.Next() {
		var u identity.User
		var lastLogin sql.NullTime
		if err := rows.Scan(&u.ID, &u.CustomerID, &u.Email, &u.DisplayName, &u.PasswordHash,
			&u.Status, &u.IsCustomerAdmin, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if lastLogin.Valid {
			t := lastLogin.Time
			u.LastLoginAt = &t
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user identity.User) (identity.User, error) {
	if user.ID == "" {
		user.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into platform_users(id, customer_id, email, display_name, password_hash, status, is_customer_admin)
		values ($1,$2,$3,$4,$5,$6,$7)
		returning `+userColumns,
		user.ID, user.CustomerID, user.Email, user.DisplayName, user.PasswordHash,
		user.Status, user.IsCustomerAdmin)
	created, err := scanUser(row)
	if err != nil {
		return identity.User{}, mapConstraint(err)
	}
	return created, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd identity.UserUpdate) (identity.User, error) {
	set := []string{"updated_at=now()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.DisplayName != nil {
		add("display_name", *upd.DisplayName)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.IsCustomerAdmin != nil {
		add("is_customer_admin", *upd.IsCustomerAdmin)
	}
	row := s.db.QueryRowContext(ctx,
		`update platform_users set `+strings.Join(set, ", ")+` where id=$1 returning `+userColumns, args...)
	return scanUser(row)
}

func (s *Store) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update platform_users set last_login_at=$2, updated_at=now() where id=$1`, userID, at)
	return err
}

// Customers -----------------------------------------------------------------

const customerColumns = `id, name, slug, coalesce(legal_name,''), coalesce(industry,''), plan, status, coalesce(default_organization_id,''), config, created_at, updated_at`

func scanCustomer(row *sql.Row) (identity.Customer, error) {
	var c identity.Customer
	var config []byte
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.LegalName, &c.Industry, &c.Plan,
		&c.Status, &c.DefaultOrganizationID, &config, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Customer{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Customer{}, err
	}
	if len(config) > 0 {
		_ = json.Unmarshal(config, &c.Config)
	}
	return c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (identity.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx,
		`select `+customerColumns+` from customers where id=$1`, id))
}

func (s *Store) UpdateCustomer(ctx context.Context, id string, upd identity.CustomerUpdate) (identity.Customer, error) {
	set := []string{"updated_at=now()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.LegalName != nil {
		add("legal_name", *upd.LegalName)
	}
	if upd.Industry != nil {
		add("industry", *upd.Industry)
	}
	if upd.Plan != nil {
		add("plan", *upd.Plan)
	}
	if upd.Config != nil {
		config, err := json.Marshal(upd.Config)
		if err != nil {
			return identity.Customer{}, err
		}
		add("config", config)
	}
	res, err := s.db.ExecContext(ctx,
		`update customers set `+strings.Join(set, ", ")+` where id=$1`, args...)
	if err != nil {
		return identity.Customer{}, mapConstraint(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.Customer{}, identity.ErrNotFound
	}
	return s.GetCustomer(ctx, id)
}

// Organizations -------------------------------------------------------------

const orgColumns = `id, customer_id, name, code, coalesce(legal_entity_name,''), coalesce(country,''), timezone, fiscal_year_end_month, default_currency_code, status, is_default, created_at, updated_at`

func scanOrg(scan func(...any) error) (identity.Organization, error) {
	var o identity.Organization
	err := scan(&o.ID, &o.CustomerID, &o.Name, &o.Code, &o.LegalEntityName, &o.Country,
		&o.Timezone, &o.FiscalYearEndMonth, &o.DefaultCurrencyCode, &o.Status,
		&o.IsDefault, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Organization{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Organization{}, err
	}
	return o, nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (identity.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where id=$1`, id)
	return scanOrg(row.Scan)
}

func (s *Store) ListOrganizations(ctx context.Context, customerID string) ([]identity.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+orgColumns+` from organizations where customer_id=$1 order by created_at asc`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []identity.Organization
	for rows.Next() {
		o, err := scanOrg(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (s *Store) CreateOrganization(ctx context.Context, org identity.Organization) (identity.Organization, error) {
	if org.ID == "" {
		org.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into organizations(id, customer_id, name, code, legal_entity_name, country,
			timezone, fiscal_year_end_month, default_currency_code, status, is_default)
		values ($1,$2,$3,$4,nullif($5,''),nullif($6,''),$7,$8,$9,$10,$11)
		returning `+orgColumns,
		org.ID, org.CustomerID, org.Name, org.Code, org.LegalEntityName, org.Country,
		org.Timezone, org.FiscalYearEndMonth, org.DefaultCurrencyCode, org.Status, org.IsDefault)
	created, err := scanOrg(row.Scan)
	if err != nil {
		return identity.Organization{}, mapConstraint(err)
	}
	return created, nil
}

func (s *Store) UpdateOrganization(ctx context.Context, id string, upd identity.OrganizationUpdate) (identity.Organization, error) {
	set := []string{"updated_at=now()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.LegalEntityName != nil {
		add("legal_entity_name", *upd.LegalEntityName)
	}
	if upd.Country != nil {
		add("country", *upd.Country)
	}
	if upd.Timezone != nil {
		add("timezone", *upd.Timezone)
	}
	if upd.FiscalYearEndMonth != nil {
		add("fiscal_year_end_month", *upd.FiscalYearEndMonth)
	}
	if upd.DefaultCurrencyCode != nil {
		add("default_currency_code", *upd.DefaultCurrencyCode)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	row := s.db.QueryRowContext(ctx,
		`update organizations set `+strings.Join(set, ", ")+` where id=$1 returning `+orgColumns, args...)
	updated, err := scanOrg(row.Scan)
	if err != nil {
		return identity.Organization{}, mapConstraint(err)
	}
	return updated, nil
}

func (s *Store) ArchiveOrganization(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update organizations set status=$2, updated_at=now() where id=$1`, id, identity.StatusArchived)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// Currencies ----------------------------------------------------------------

const currencyColumns = `id, organization_id, currency_code, is_primary, is_reporting, exchange_rate_source, status`

func (s *Store) ListCurrencies(ctx context.Context, organizationID string) ([]identity.OrganizationCurrency, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+currencyColumns+` from organization_currencies where organization_id=$1 order by currency_code`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []identity.OrganizationCurrency
	for rows.Next() {
		var c identity.OrganizationCurrency
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.CurrencyCode, &c.IsPrimary,
			&c.IsReporting, &c.ExchangeRateSource, &c.Status); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *Store) AddCurrency(ctx context.Context, cur identity.OrganizationCurrency) (identity.OrganizationCurrency, error) {
	if cur.ID == "" {
		cur.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into organization_currencies(id, organization_id, currency_code, is_primary, is_reporting, exchange_rate_source, status)
		values ($1,$2,$3,$4,$5,$6,$7)`,
		cur.ID, cur.OrganizationID, cur.CurrencyCode, cur.IsPrimary, cur.IsReporting,
		cur.ExchangeRateSource, cur.Status)
	if err != nil {
		return identity.OrganizationCurrency{}, mapConstraint(err)
	}
	return cur, nil
}

// Roles ---------------------------------------------------------------------

const roleColumns = `id, coalesce(customer_id,''), name, coalesce(description,''), permissions, is_system, created_at`

func scanRole(scan func(...any) error) (identity.Role, error) {
	var r identity.Role
	var perms []byte
	err := scan(&r.ID, &r.CustomerID, &r.Name, &r.Description, &perms, &r.IsSystem, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Role{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Role{}, err
	}
	if len(perms) > 0 {
		_ = json.Unmarshal(perms, &r.Permissions)
	}
	return r, nil
}

func (s *Store) GetRole(ctx context.Context, id string) (identity.Role, error) {
	row := s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where id=$1`, id)
	return scanRole(row.Scan)
}

func (s *Store) ListRoles(ctx context.Context, customerID string) ([]identity.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+roleColumns+` from roles where customer_id=$1 or customer_id is null order by name`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []identity.Role
	for rows.Next() {
		r, err := scanRole(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *Store) CreateRole(ctx context.Context, role identity.Role) (identity.Role, error) {
	if role.ID == "" {
		role.ID = ids.New()
	}
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return identity.Role{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles(id, customer_id, name, description, permissions, is_system)
		values ($1,$2,$3,nullif($4,''),$5,false)
		returning `+roleColumns,
		role.ID, role.CustomerID, role.Name, role.Description, perms)
	created, err := scanRole(row.Scan)
	if err != nil {
		return identity.Role{}, mapConstraint(err)
	}
	return created, nil
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd identity.RoleUpdate) (identity.Role, error) {
	set := []string{}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Permissions != nil {
		perms, err := json.Marshal(upd.Permissions)
		if err != nil {
			return identity.Role{}, err
		}
		add("permissions", perms)
	}
	if len(set) == 0 {
		return s.GetRole(ctx, id)
	}
	row := s.db.QueryRowContext(ctx,
		`update roles set `+strings.Join(set, ", ")+` where id=$1 returning `+roleColumns, args...)
	updated, err := scanRole(row.Scan)
	if err != nil {
		return identity.Role{}, mapConstraint(err)
	}
	return updated, nil
}

// DeleteRole removes a role row. A role still referenced by memberships
// fails the FK and reports a conflict rather than a missing row.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		if pge, ok := pgErr(err); ok && pge.Code == "23503" {
			return fmt.Errorf("%w: %s", identity.ErrConflict, pge.ConstraintName)
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// Memberships ---------------------------------------------------------------

const membershipQuery = `
	select uo.user_id, uo.organization_id, o.name, o.code, uo.role_id, r.name,
	       uo.is_default, uo.status, uo.created_at
	from user_organizations uo
	join organizations o on o.id = uo.organization_id
	join roles r on r.id = uo.role_id`

func scanMembership(scan func(...any) error) (identity.Membership, error) {
	var m identity.Membership
	err := scan(&m.UserID, &m.OrganizationID, &m.OrganizationName, &m.OrganizationCode,
		&m.RoleID, &m.RoleName, &m.IsDefault, &m.Status, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Membership{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Membership{}, err
	}
	return m, nil
}

func (s *Store) ListMemberships(ctx context.Context, userID string) ([]identity.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		membershipQuery+` where uo.user_id=$1 and uo.status=$2 order by uo.created_at asc`,
		userID, identity.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []identity.Membership
	for rows.Next() {
		m, err := scanMembership(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (s *Store) GetMembership(ctx context.Context, userID, organizationID string) (identity.Membership, error) {
	row := s.db.QueryRowContext(ctx,
		membershipQuery+` where uo.user_id=$1 and uo.organization_id=$2 and uo.status=$3`,
		userID, organizationID, identity.StatusActive)
	return scanMembership(row.Scan)
}

func (s *Store) DefaultMembership(ctx context.Context, userID string) (identity.Membership, error) {
	// Fall back to the oldest membership when none is flagged default.
	row := s.db.QueryRowContext(ctx,
		membershipQuery+` where uo.user_id=$1 and uo.status=$2
		order by uo.is_default desc, uo.created_at asc limit 1`,
		userID, identity.StatusActive)
	return scanMembership(row.Scan)
}

// AddMembership inserts the binding and re-reads it through the join so the
// returned row carries the organization and role names.
func (s *Store) AddMembership(ctx context.Context, m identity.Membership) (identity.Membership, error) {
	if _, err := s.db.ExecContext(ctx, `
		insert into user_organizations(id, user_id, organization_id, role_id, is_default, status)
		values ($1,$2,$3,$4,$5,$6)`,
		ids.New(), m.UserID, m.OrganizationID, m.RoleID, m.IsDefault, m.Status); err != nil {
		return identity.Membership{}, mapConstraint(err)
	}
	return s.GetMembership(ctx, m.UserID, m.OrganizationID)
}

func (s *Store) RemoveMembership(ctx context.Context, userID, organizationID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from user_organizations where user_id=$1 and organization_id=$2`,
		userID, organizationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// Bootstrap -----------------------------------------------------------------

func (s *Store) Bootstrap(ctx context.Context, in identity.BootstrapInput) (identity.BootstrapResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return identity.BootstrapResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res := identity.BootstrapResult{}

	customerID := ids.New()
	if _, err := tx.ExecContext(ctx, `
		insert into customers(id, name, slug, plan, status)
		values ($1,$2,$3,$4,'active')`,
		customerID, in.CustomerName, in.Slug, identity.DefaultPlan); err != nil {
		return identity.BootstrapResult{}, mapConstraint(err)
	}

	orgID := ids.New()
	if _, err := tx.ExecContext(ctx, `
		insert into organizations(id, customer_id, name, code, timezone,
			fiscal_year_end_month, default_currency_code, status, is_default)
		values ($1,$2,$3,$4,'UTC',12,$5,'active',true)`,
		orgID, customerID, in.OrgName, in.OrgCode, in.CurrencyCode); err != nil {
		return identity.BootstrapResult{}, mapConstraint(err)
	}

	if _, err := tx.ExecContext(ctx, `
		update customers set default_organization_id=$2 where id=$1`,
		customerID, orgID); err != nil {
		return identity.BootstrapResult{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into organization_currencies(id, organization_id, currency_code, is_primary, is_reporting, exchange_rate_source, status)
		values ($1,$2,$3,true,true,'manual','active')`,
		ids.New(), orgID, in.CurrencyCode); err != nil {
		return identity.BootstrapResult{}, mapConstraint(err)
	}

	// Seed system roles, idempotent by (customer_id, name).
	var adminRoleID string
	for _, seed := range in.Roles {
		perms, err := json.Marshal(seed.Permissions)
		if err != nil {
			return identity.BootstrapResult{}, err
		}
		var roleID string
		if err := tx.QueryRowContext(ctx, `
			insert into roles(id, customer_id, name, description, permissions, is_system)
			values ($1,$2,$3,$4,$5,true)
			on conflict (customer_id, name) do update set permissions=excluded.permissions
			returning id`,
			ids.New(), customerID, seed.Name, seed.Description, perms).Scan(&roleID); err != nil {
			return identity.BootstrapResult{}, mapConstraint(err)
		}
		if seed.Name == identity.RoleAdmin {
			adminRoleID = roleID
			res.AdminRole = identity.Role{
				ID:          roleID,
				CustomerID:  customerID,
				Name:        seed.Name,
				Description: seed.Description,
				Permissions: seed.Permissions.Clone(),
				IsSystem:    true,
				CreatedAt:   now,
			}
		}
	}
	if adminRoleID == "" {
		return identity.BootstrapResult{}, fmt.Errorf("bootstrap: no admin role in seed set")
	}

	userID := ids.New()
	if _, err := tx.ExecContext(ctx, `
		insert into platform_users(id, customer_id, email, display_name, password_hash, status, is_customer_admin)
		values ($1,$2,$3,$4,$5,'active',true)`,
		userID, customerID, in.Email, in.DisplayName, in.PasswordHash); err != nil {
		return identity.BootstrapResult{}, mapConstraint(err)
	}

	if _, err := tx.ExecContext(ctx, `
		insert into user_organizations(id, user_id, organization_id, role_id, is_default, status)
		values ($1,$2,$3,$4,true,'active')`,
		ids.New(), userID, orgID, adminRoleID); err != nil {
		return identity.BootstrapResult{}, mapConstraint(err)
	}

	if err := tx.Commit(); err != nil {
		return identity.BootstrapResult{}, mapConstraint(err)
	}

	res.Customer = identity.Customer{
		ID: customerID, Name: in.CustomerName, Slug: in.Slug,
		Plan: identity.DefaultPlan, Status: identity.StatusActive,
		DefaultOrganizationID: orgID, CreatedAt: now, UpdatedAt: now,
	}
	res.Organization = identity.Organization{
		ID: orgID, CustomerID: customerID, Name: in.OrgName, Code: in.OrgCode,
		Timezone: "UTC", FiscalYearEndMonth: 12, DefaultCurrencyCode: in.CurrencyCode,
		Status: identity.StatusActive, IsDefault: true, CreatedAt: now, UpdatedAt: now,
	}
	res.User = identity.User{
		ID: userID, CustomerID: customerID, Email: in.Email,
		DisplayName: in.DisplayName, PasswordHash: in.PasswordHash,
		Status: identity.StatusActive, IsCustomerAdmin: true,
		CreatedAt: now, UpdatedAt: now,
	}
	return res, nil
}
