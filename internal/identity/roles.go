package identity

// Platform domains scoped by roles and cross-org policies.
const (
	DomainCommandCenter = "command_center"
	DomainFPA           = "fpa"
	DomainTreasury      = "treasury"
	DomainAccounting    = "accounting"
	DomainRisk          = "risk"
	DomainMonitoring    = "monitoring"
	DomainAgentStudio   = "agent_studio"
	DomainAdmin         = "admin"
)

const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
)

// RoleAdmin is the system role bound to the first user at tenant bootstrap.
const RoleAdmin = "admin"

// RoleSeed describes one system role seeded per customer.
type RoleSeed struct {
	Name        string
	Description string
	Permissions PermissionMap
}

var fullAccess = []string{ActionRead, ActionWrite, ActionDelete}

// SystemRoles is the immutable seed table for per-customer system roles.
// Seeding is an idempotent upsert-by-name, safe to re-run on a retried bootstrap.
var SystemRoles = []RoleSeed{
	{
		Name:        RoleAdmin,
		Description: "Full access to all modules",
		Permissions: PermissionMap{
			DomainCommandCenter: fullAccess,
			DomainFPA:           fullAccess,
			DomainTreasury:      fullAccess,
			DomainAccounting:    fullAccess,
			DomainRisk:          fullAccess,
			DomainMonitoring:    fullAccess,
			DomainAgentStudio:   fullAccess,
			DomainAdmin:         fullAccess,
		},
	},
	{
		Name:        "controller",
		Description: "Financial controller access",
		Permissions: PermissionMap{
			DomainFPA:           {ActionRead, ActionWrite},
			DomainTreasury:      {ActionRead, ActionWrite},
			DomainAccounting:    {ActionRead, ActionWrite, ActionDelete},
			DomainCommandCenter: {ActionRead},
			DomainRisk:          {ActionRead},
			DomainMonitoring:    {ActionRead},
		},
	},
	{
		Name:        "analyst",
		Description: "Analyst access, planning write only",
		Permissions: PermissionMap{
			DomainCommandCenter: {ActionRead},
			DomainFPA:           {ActionRead, ActionWrite},
			DomainTreasury:      {ActionRead},
			DomainAccounting:    {ActionRead},
			DomainRisk:          {ActionRead},
			DomainMonitoring:    {ActionRead},
		},
	},
	{
		Name:        "viewer",
		Description: "View-only access",
		Permissions: PermissionMap{
			DomainCommandCenter: {ActionRead},
			DomainFPA:           {ActionRead},
			DomainTreasury:      {ActionRead},
		},
	},
}

// AdminPermissions returns a copy of the admin seed map, used for the
// customer-admin override path where no membership row supplies a role.
func AdminPermissions() PermissionMap {
	for _, seed := range SystemRoles {
		if seed.Name == RoleAdmin {
			return seed.Permissions.Clone()
		}
	}
	return nil
}
