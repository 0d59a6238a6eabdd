// Package access implements cross-organization data-sharing grants: directed,
// expiring policies that let members of one organization see another
// organization's domain data.
package access

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("access: policy not found")

	// ErrPolicyConflict covers self-sharing and duplicate grants for the same
	// (from, to, domain, row_type) scope.
	ErrPolicyConflict = errors.New("access: conflicting policy")

	ErrInvalidPolicy = errors.New("access: invalid policy")
)

// RowType selects whether a grant is scoped to roles or to individual users
// within the grantee organization.
type RowType string

const (
	RowTypeRole RowType = "role"
	RowTypeUser RowType = "user"
)

// Valid reports whether t is a known row type.
func (t RowType) Valid() bool { return t == RowTypeRole || t == RowTypeUser }

// Level is the granted access level, ordered view < edit < full.
type Level string

const (
	LevelView Level = "view"
	LevelEdit Level = "edit"
	LevelFull Level = "full"
)

func (l Level) rank() int {
	switch l {
	case LevelView:
		return 1
	case LevelEdit:
		return 2
	case LevelFull:
		return 3
	default:
		return 0
	}
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool { return l.rank() > 0 }

// Covers reports whether l is at least as permissive as want.
func (l Level) Covers(want Level) bool {
	return l.rank() > 0 && want.rank() > 0 && l.rank() >= want.rank()
}

// Config scopes a grant to specific roles or users of the grantee organization,
// with an optional entity-type restriction.
type Config struct {
	AllowedRoleIDs     []string `json:"allowed_role_ids,omitempty"`
	AllowedUserIDs     []string `json:"allowed_user_ids,omitempty"`
	RestrictToEntities []string `json:"restrict_to_entities,omitempty"`
	Description        string   `json:"description,omitempty"`
}

// Policy is one directed cross-organization grant: FromOrganizationID owns the
// data, ToOrganizationID receives visibility. (from, to, domain, row_type) is
// unique and from != to always holds.
type Policy struct {
	ID                 string     `json:"id"`
	CustomerID         string     `json:"customer_id"`
	FromOrganizationID string     `json:"from_organization_id"`
	ToOrganizationID   string     `json:"to_organization_id"`
	Domain             string     `json:"domain"`
	RowType            RowType    `json:"row_type"`
	Level              Level      `json:"access_level"`
	Config             Config     `json:"access_config"`
	Active             bool       `json:"is_active"`
	GrantedByUserID    string     `json:"granted_by_user_id,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Expired reports whether the policy's expiry has passed at now. An expired
// policy is treated as absent, never silently extended.
func (p Policy) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// Direction selects which side of a grant an organization is on when listing.
type Direction string

const (
	DirectionTo   Direction = "to"
	DirectionFrom Direction = "from"
)

// Update is a partial policy update; only level, config, active flag and expiry
// may change after creation.
type Update struct {
	Level     *Level
	Config    *Config
	Active    *bool
	ExpiresAt *time.Time
}
