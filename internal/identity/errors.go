package identity

import "errors"

// Expected, user-facing outcomes. Handlers map these to HTTP statuses; raw store
// errors are never surfaced.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password so the
	// login endpoint gives no user-enumeration signal.
	ErrInvalidCredentials = errors.New("identity: invalid email or password")

	ErrAccountDisabled = errors.New("identity: account is not active")
	ErrUserInactive    = errors.New("identity: user not found or inactive")
	ErrEmailTaken      = errors.New("identity: email already registered")

	// ErrInvalidToken covers forged, expired, malformed and wrong-type tokens
	// alike; the codec never tells the caller which it was.
	ErrInvalidToken = errors.New("identity: invalid token")

	ErrNoOrganizationAvailable = errors.New("identity: no organization selector and no default organization")
	ErrInvalidOrganizationID   = errors.New("identity: invalid organization id")

	// ErrOrganizationNotFound and ErrAccessDenied both surface as 403 so that
	// organization existence is not revealed to non-members.
	ErrOrganizationNotFound = errors.New("identity: organization not found or access denied")
	ErrAccessDenied         = errors.New("identity: no access to this organization")

	ErrAdminRequired = errors.New("identity: customer admin required")
	ErrRoleImmutable = errors.New("identity: system roles cannot be modified")
)

// Store-level sentinels.
var (
	ErrNotFound = errors.New("identity: not found")
	ErrConflict = errors.New("identity: already exists")

	// ErrSlugTaken is the commit-time unique-constraint outcome of two signups
	// racing on the same customer slug; the service retries once with a
	// disambiguated slug.
	ErrSlugTaken = errors.New("identity: customer slug already taken")
)
