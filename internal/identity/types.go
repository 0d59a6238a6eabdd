package identity

import "time"

const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
	StatusArchived  = "archived"
)

// Customer is the billing and tenancy root. Customers are never hard-deleted;
// their status moves to archived instead.
type Customer struct {
	ID                    string         `json:"id"`
	Name                  string         `json:"name"`
	Slug                  string         `json:"slug"`
	LegalName             string         `json:"legal_name,omitempty"`
	Industry              string         `json:"industry,omitempty"`
	Plan                  string         `json:"plan"`
	Status                string         `json:"status"`
	DefaultOrganizationID string         `json:"default_organization_id,omitempty"`
	Config                map[string]any `json:"config,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Organization is an operating entity under a Customer. (customer_id, code) is unique.
type Organization struct {
	ID                  string    `json:"id"`
	CustomerID          string    `json:"customer_id"`
	Name                string    `json:"name"`
	Code                string    `json:"code"`
	LegalEntityName     string    `json:"legal_entity_name,omitempty"`
	Country             string    `json:"country,omitempty"`
	Timezone            string    `json:"timezone"`
	FiscalYearEndMonth  int       `json:"fiscal_year_end_month"`
	DefaultCurrencyCode string    `json:"default_currency_code"`
	Status              string    `json:"status"`
	IsDefault           bool      `json:"is_default"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// OrganizationCurrency is a currency enabled for an organization.
type OrganizationCurrency struct {
	ID                 string `json:"id"`
	OrganizationID     string `json:"organization_id"`
	CurrencyCode       string `json:"currency_code"`
	IsPrimary          bool   `json:"is_primary"`
	IsReporting        bool   `json:"is_reporting"`
	ExchangeRateSource string `json:"exchange_rate_source"`
	Status             string `json:"status"`
}

// User is an authenticated principal scoped to exactly one customer.
// Email is unique across the whole system, not just per customer.
type User struct {
	ID              string     `json:"id"`
	CustomerID      string     `json:"customer_id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	PasswordHash    string     `json:"-"`
	Status          string     `json:"status"`
	IsCustomerAdmin bool       `json:"is_customer_admin"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Role is a named permission bundle. System roles are seeded per customer at
// bootstrap and cannot be mutated or deleted. CustomerID is empty for global roles.
type Role struct {
	ID          string        `json:"id"`
	CustomerID  string        `json:"customer_id,omitempty"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Permissions PermissionMap `json:"permissions"`
	IsSystem    bool          `json:"is_system"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Membership binds a user to an organization with a role. It is the sole source
// of truth for which organizations a user can see. The row carries the joined
// organization and role names so the token org list can be assembled in one read.
type Membership struct {
	UserID           string    `json:"user_id"`
	OrganizationID   string    `json:"organization_id"`
	OrganizationName string    `json:"organization_name"`
	OrganizationCode string    `json:"organization_code"`
	RoleID           string    `json:"role_id"`
	RoleName         string    `json:"role_name"`
	IsDefault        bool      `json:"is_default"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// PermissionMap maps a domain (treasury, accounting, ...) to the actions a role
// may perform in it.
type PermissionMap map[string][]string

// Allows reports whether the map grants action on domain.
func (m PermissionMap) Allows(domain, action string) bool {
	for _, a := range m[domain] {
		if a == action {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate shared seed tables.
func (m PermissionMap) Clone() PermissionMap {
	if m == nil {
		return nil
	}
	out := make(PermissionMap, len(m))
	for domain, actions := range m {
		out[domain] = append([]string(nil), actions...)
	}
	return out
}

// Profile is the read view returned by the profile endpoint.
type Profile struct {
	ID              string              `json:"id"`
	CustomerID      string              `json:"customer_id"`
	Email           string              `json:"email"`
	DisplayName     string              `json:"display_name"`
	Status          string              `json:"status"`
	IsCustomerAdmin bool                `json:"is_customer_admin"`
	LastLoginAt     *time.Time          `json:"last_login_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	Organizations   []OrganizationClaim `json:"organizations"`
}
