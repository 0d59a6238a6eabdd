package identity

import (
	"context"
	"time"
)

// TenantStore describes persistence of the tenancy entities. The Postgres
// implementation lives in internal/store/pg; unique constraints there are the
// safety net for the read-then-write checks in the service layer.
type TenantStore interface {
	// Users.
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, customerID string) ([]User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error

	// Customers.
	GetCustomer(ctx context.Context, id string) (Customer, error)
	UpdateCustomer(ctx context.Context, id string, upd CustomerUpdate) (Customer, error)

	// Organizations.
	GetOrganization(ctx context.Context, id string) (Organization, error)
	ListOrganizations(ctx context.Context, customerID string) ([]Organization, error)
	CreateOrganization(ctx context.Context, org Organization) (Organization, error)
	UpdateOrganization(ctx context.Context, id string, upd OrganizationUpdate) (Organization, error)
	ArchiveOrganization(ctx context.Context, id string) error

	// Organization currencies.
	ListCurrencies(ctx context.Context, organizationID string) ([]OrganizationCurrency, error)
	AddCurrency(ctx context.Context, cur OrganizationCurrency) (OrganizationCurrency, error)

	// Roles. ListRoles returns the customer's roles plus global system roles.
	GetRole(ctx context.Context, id string) (Role, error)
	ListRoles(ctx context.Context, customerID string) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error)
	DeleteRole(ctx context.Context, id string) error

	// Memberships. ListMemberships and GetMembership return active rows only,
	// joined with organization and role names.
	ListMemberships(ctx context.Context, userID string) ([]Membership, error)
	GetMembership(ctx context.Context, userID, organizationID string) (Membership, error)
	DefaultMembership(ctx context.Context, userID string) (Membership, error)
	AddMembership(ctx context.Context, m Membership) (Membership, error)
	RemoveMembership(ctx context.Context, userID, organizationID string) error

	// Bootstrap runs the atomic signup sequence in one transaction: customer,
	// default organization, primary currency, system roles (idempotent by
	// name), first user, admin membership. A unique-constraint violation maps
	// to ErrEmailTaken or ErrSlugTaken and leaves no partial state.
	Bootstrap(ctx context.Context, in BootstrapInput) (BootstrapResult, error)
}

// UserUpdate is a partial user update; nil fields are left unchanged.
type UserUpdate struct {
	DisplayName     *string
	Status          *string
	IsCustomerAdmin *bool
}

// CustomerUpdate is a partial customer update; nil fields are left unchanged.
type CustomerUpdate struct {
	Name      *string
	LegalName *string
	Industry  *string
	Plan      *string
	Config    map[string]any
}

// OrganizationUpdate is a partial organization update.
type OrganizationUpdate struct {
	Name                *string
	LegalEntityName     *string
	Country             *string
	Timezone            *string
	FiscalYearEndMonth  *int
	DefaultCurrencyCode *string
	Status              *string
}

// BootstrapInput carries everything the signup transaction inserts.
type BootstrapInput struct {
	Email        string
	DisplayName  string
	PasswordHash string
	CustomerName string
	Slug         string
	OrgName      string
	OrgCode      string
	CurrencyCode string
	Roles        []RoleSeed
}

// BootstrapResult reports the rows the transaction created.
type BootstrapResult struct {
	Customer     Customer
	Organization Organization
	User         User
	AdminRole    Role
}
