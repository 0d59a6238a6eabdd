package identity

import (
	"context"
	"errors"
	"strings"
)

// AdminService is the tenancy management surface: customer settings,
// organizations, currencies and roles. Reads are open to any authenticated
// user of the customer; every mutation requires a customer admin.
type AdminService struct {
	store TenantStore
}

// NewAdminService constructs the tenancy admin service.
func NewAdminService(store TenantStore) (*AdminService, error) {
	if store == nil {
		return nil, errors.New("identity: tenant store is required")
	}
	return &AdminService{store: store}, nil
}

// Customer returns the actor's customer.
func (a *AdminService) Customer(ctx context.Context, actor User) (Customer, error) {
	return a.store.GetCustomer(ctx, actor.CustomerID)
}

// UpdateCustomer applies a partial update to the actor's customer.
func (a *AdminService) UpdateCustomer(ctx context.Context, actor User, upd CustomerUpdate) (Customer, error) {
	if !actor.IsCustomerAdmin {
		return Customer{}, ErrAdminRequired
	}
	return a.store.UpdateCustomer(ctx, actor.CustomerID, upd)
}

// Organizations lists the customer's organizations.
func (a *AdminService) Organizations(ctx context.Context, actor User) ([]Organization, error) {
	return a.store.ListOrganizations(ctx, actor.CustomerID)
}

// OrganizationInput describes a new organization.
type OrganizationInput struct {
	Name                string
	Code                string
	LegalEntityName     string
	Country             string
	Timezone            string
	FiscalYearEndMonth  int
	DefaultCurrencyCode string
}

// CreateOrganization adds an organization under the actor's customer.
func (a *AdminService) CreateOrganization(ctx context.Context, actor User, in OrganizationInput) (Organization, error) {
	if !actor.IsCustomerAdmin {
		return Organization{}, ErrAdminRequired
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	if in.Name == "" || in.Code == "" {
		return Organization{}, errors.New("identity: organization name and code are required")
	}
	if in.Timezone == "" {
		in.Timezone = "UTC"
	}
	if in.FiscalYearEndMonth < 1 || in.FiscalYearEndMonth > 12 {
		in.FiscalYearEndMonth = 12
	}
	if in.DefaultCurrencyCode == "" {
		in.DefaultCurrencyCode = defaultCurrency
	}
	org := Organization{
		CustomerID:          actor.CustomerID,
		Name:                in.Name,
		Code:                in.Code,
		LegalEntityName:     in.LegalEntityName,
		Country:             in.Country,
		Timezone:            in.Timezone,
		FiscalYearEndMonth:  in.FiscalYearEndMonth,
		DefaultCurrencyCode: in.DefaultCurrencyCode,
		Status:              StatusActive,
	}
	created, err := a.store.CreateOrganization(ctx, org)
	if err != nil {
		return Organization{}, err
	}
	// Every organization carries its default currency as primary.
	_, err = a.store.AddCurrency(ctx, OrganizationCurrency{
		OrganizationID:     created.ID,
		CurrencyCode:       created.DefaultCurrencyCode,
		IsPrimary:          true,
		IsReporting:        true,
		ExchangeRateSource: "manual",
		Status:             StatusActive,
	})
	if err != nil && !errors.Is(err, ErrConflict) {
		return Organization{}, err
	}
	return created, nil
}

// UpdateOrganization applies a partial update to one of the customer's
// organizations.
func (a *AdminService) UpdateOrganization(ctx context.Context, actor User, orgID string, upd OrganizationUpdate) (Organization, error) {
	if !actor.IsCustomerAdmin {
		return Organization{}, ErrAdminRequired
	}
	if err := a.requireOwnOrg(ctx, actor, orgID); err != nil {
		return Organization{}, err
	}
	return a.store.UpdateOrganization(ctx, orgID, upd)
}

// ArchiveOrganization soft-deletes an organization. The customer's default
// organization cannot be archived.
func (a *AdminService) ArchiveOrganization(ctx context.Context, actor User, orgID string) error {
	if !actor.IsCustomerAdmin {
		return ErrAdminRequired
	}
	org, err := a.store.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if org.CustomerID != actor.CustomerID {
		return ErrNotFound
	}
	if org.IsDefault {
		return errors.New("identity: default organization cannot be archived")
	}
	return a.store.ArchiveOrganization(ctx, orgID)
}

// Currencies lists the currencies enabled for one of the customer's
// organizations.
func (a *AdminService) Currencies(ctx context.Context, actor User, orgID string) ([]OrganizationCurrency, error) {
	if err := a.requireOwnOrg(ctx, actor, orgID); err != nil {
		return nil, err
	}
	return a.store.ListCurrencies(ctx, orgID)
}

// AddCurrency enables a currency for an organization.
func (a *AdminService) AddCurrency(ctx context.Context, actor User, orgID, code string) (OrganizationCurrency, error) {
	if !actor.IsCustomerAdmin {
		return OrganizationCurrency{}, ErrAdminRequired
	}
	if err := a.requireOwnOrg(ctx, actor, orgID); err != nil {
		return OrganizationCurrency{}, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return OrganizationCurrency{}, errors.New("identity: currency code must be 3 letters")
	}
	return a.store.AddCurrency(ctx, OrganizationCurrency{
		OrganizationID:     orgID,
		CurrencyCode:       code,
		ExchangeRateSource: "manual",
		Status:             StatusActive,
	})
}

// Roles lists the customer's roles plus global system roles.
func (a *AdminService) Roles(ctx context.Context, actor User) ([]Role, error) {
	return a.store.ListRoles(ctx, actor.CustomerID)
}

// RoleInput describes a new custom role.
type RoleInput struct {
	Name        string
	Description string
	Permissions PermissionMap
}

// CreateRole adds a custom role for the actor's customer.
func (a *AdminService) CreateRole(ctx context.Context, actor User, in RoleInput) (Role, error) {
	if !actor.IsCustomerAdmin {
		return Role{}, ErrAdminRequired
	}
	in.Name = strings.ToLower(strings.TrimSpace(in.Name))
	if in.Name == "" {
		return Role{}, errors.New("identity: role name is required")
	}
	return a.store.CreateRole(ctx, Role{
		CustomerID:  actor.CustomerID,
		Name:        in.Name,
		Description: in.Description,
		Permissions: in.Permissions.Clone(),
	})
}

// RoleUpdate is a partial role update.
type RoleUpdate struct {
	Description *string
	Permissions PermissionMap
}

// UpdateRole changes a custom role. System roles are immutable.
func (a *AdminService) UpdateRole(ctx context.Context, actor User, roleID string, upd RoleUpdate) (Role, error) {
	if !actor.IsCustomerAdmin {
		return Role{}, ErrAdminRequired
	}
	role, err := a.store.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if role.CustomerID != actor.CustomerID {
		return Role{}, ErrNotFound
	}
	if role.IsSystem {
		return Role{}, ErrRoleImmutable
	}
	return a.store.UpdateRole(ctx, roleID, upd)
}

// Users lists the customer's users.
func (a *AdminService) Users(ctx context.Context, actor User) ([]User, error) {
	return a.store.ListUsers(ctx, actor.CustomerID)
}

// UserInput describes a user created by a customer admin. OrganizationID and
// RoleID, when set, attach a default membership in the same call.
type UserInput struct {
	Email           string
	Password        string
	DisplayName     string
	IsCustomerAdmin bool
	OrganizationID  string
	RoleID          string
}

// CreateUser adds a user under the actor's customer. The email unique
// constraint is the race safety net behind the read-then-write check.
func (a *AdminService) CreateUser(ctx context.Context, actor User, in UserInput) (User, error) {
	if !actor.IsCustomerAdmin {
		return User{}, ErrAdminRequired
	}
	in.Email = strings.TrimSpace(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.Email == "" || in.Password == "" || in.DisplayName == "" {
		return User{}, errors.New("identity: email, password and display_name are required")
	}
	if _, err := a.store.GetUserByEmail(ctx, in.Email); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	user, err := a.store.CreateUser(ctx, User{
		CustomerID:      actor.CustomerID,
		Email:           in.Email,
		DisplayName:     in.DisplayName,
		PasswordHash:    hash,
		Status:          StatusActive,
		IsCustomerAdmin: in.IsCustomerAdmin,
	})
	if err != nil {
		return User{}, err
	}
	if in.OrganizationID != "" {
		_, err := a.AssignMembership(ctx, actor, MembershipInput{
			UserID:         user.ID,
			OrganizationID: in.OrganizationID,
			RoleID:         in.RoleID,
			IsDefault:      true,
		})
		if err != nil {
			return User{}, err
		}
	}
	return user, nil
}

// UpdateUser applies a partial update to a user of the actor's customer.
func (a *AdminService) UpdateUser(ctx context.Context, actor User, userID string, upd UserUpdate) (User, error) {
	if !actor.IsCustomerAdmin {
		return User{}, ErrAdminRequired
	}
	if _, err := a.requireOwnUser(ctx, actor, userID); err != nil {
		return User{}, err
	}
	return a.store.UpdateUser(ctx, userID, upd)
}

// DeactivateUser revokes a user's access by moving them to inactive. Admins
// cannot deactivate themselves.
func (a *AdminService) DeactivateUser(ctx context.Context, actor User, userID string) (User, error) {
	if !actor.IsCustomerAdmin {
		return User{}, ErrAdminRequired
	}
	if userID == actor.ID {
		return User{}, errors.New("identity: cannot deactivate your own account")
	}
	if _, err := a.requireOwnUser(ctx, actor, userID); err != nil {
		return User{}, err
	}
	status := StatusInactive
	return a.store.UpdateUser(ctx, userID, UserUpdate{Status: &status})
}

// Memberships lists the organizations a user of the actor's customer belongs to.
func (a *AdminService) Memberships(ctx context.Context, actor User, userID string) ([]Membership, error) {
	if _, err := a.requireOwnUser(ctx, actor, userID); err != nil {
		return nil, err
	}
	return a.store.ListMemberships(ctx, userID)
}

// MembershipInput binds a user to an organization with a role.
type MembershipInput struct {
	UserID         string
	OrganizationID string
	RoleID         string
	IsDefault      bool
}

// AssignMembership grants a user access to one of the customer's
// organizations. The (user, organization) unique constraint rejects a
// duplicate assignment.
func (a *AdminService) AssignMembership(ctx context.Context, actor User, in MembershipInput) (Membership, error) {
	if !actor.IsCustomerAdmin {
		return Membership{}, ErrAdminRequired
	}
	if _, err := a.requireOwnUser(ctx, actor, in.UserID); err != nil {
		return Membership{}, err
	}
	if err := a.requireOwnOrg(ctx, actor, in.OrganizationID); err != nil {
		return Membership{}, err
	}
	if in.RoleID == "" {
		return Membership{}, errors.New("identity: role_id is required")
	}
	role, err := a.store.GetRole(ctx, in.RoleID)
	if err != nil {
		return Membership{}, err
	}
	if role.CustomerID != "" && role.CustomerID != actor.CustomerID {
		return Membership{}, ErrNotFound
	}
	return a.store.AddMembership(ctx, Membership{
		UserID:         in.UserID,
		OrganizationID: in.OrganizationID,
		RoleID:         in.RoleID,
		IsDefault:      in.IsDefault,
		Status:         StatusActive,
	})
}

// RemoveMembership revokes a user's access to an organization.
func (a *AdminService) RemoveMembership(ctx context.Context, actor User, userID, orgID string) error {
	if !actor.IsCustomerAdmin {
		return ErrAdminRequired
	}
	if _, err := a.requireOwnUser(ctx, actor, userID); err != nil {
		return err
	}
	return a.store.RemoveMembership(ctx, userID, orgID)
}

// DeleteRole removes a custom role. System roles are immutable.
func (a *AdminService) DeleteRole(ctx context.Context, actor User, roleID string) error {
	if !actor.IsCustomerAdmin {
		return ErrAdminRequired
	}
	role, err := a.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.CustomerID != actor.CustomerID {
		return ErrNotFound
	}
	if role.IsSystem {
		return ErrRoleImmutable
	}
	return a.store.DeleteRole(ctx, roleID)
}

// requireOwnUser resolves a user and hides other customers' users as not-found.
func (a *AdminService) requireOwnUser(ctx context.Context, actor User, userID string) (User, error) {
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if user.CustomerID != actor.CustomerID {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (a *AdminService) requireOwnOrg(ctx context.Context, actor User, orgID string) error {
	org, err := a.store.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if org.CustomerID != actor.CustomerID {
		return ErrNotFound
	}
	return nil
}
