package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultPlan is the billing tier every new customer starts on.
const DefaultPlan = "free"

const (
	defaultCurrency    = "USD"
	maxSlugLen         = 100
	maxOrgCodeLen      = 15
	slugDisambiguation = 3 // random bytes, hex-encoded to 6 chars
)

// Service orchestrates login, signup, token refresh and profile assembly.
type Service struct {
	store TenantStore
	codec *TokenCodec
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the identity service.
func NewService(store TenantStore, codec *TokenCodec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: tenant store is required")
	}
	if codec == nil {
		return nil, errors.New("identity: token codec is required")
	}
	s := &Service{store: store, codec: codec, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TokenPair is the issued credential bundle.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login authenticates credentials and issues a fresh token pair. Unknown email
// and wrong password return the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if user.Status != StatusActive {
		return TokenPair{}, ErrAccountDisabled
	}
	if err := s.store.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		return TokenPair{}, err
	}
	orgs, err := s.orgClaims(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return s.issuePair(user, orgs)
}

// SignupInput is the typed signup request; CompanyName is optional and defaults
// to "{DisplayName}'s Company".
type SignupInput struct {
	Email       string
	Password    string
	DisplayName string
	CompanyName string
}

// Signup performs the atomic tenant bootstrap and issues the first token pair.
// The whole sequence commits as one transaction in the store; a slug collision
// at commit time is retried exactly once with a random disambiguator.
func (s *Service) Signup(ctx context.Context, in SignupInput) (TokenPair, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	if in.Email == "" || in.Password == "" || in.DisplayName == "" {
		return TokenPair{}, fmt.Errorf("%w: email, password and display_name are required", ErrInvalidCredentials)
	}

	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return TokenPair{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return TokenPair{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return TokenPair{}, err
	}

	companyName := in.CompanyName
	if companyName == "" {
		companyName = in.DisplayName + "'s Company"
	}
	slug := Slugify(companyName)

	boot := BootstrapInput{
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		PasswordHash: hash,
		CustomerName: companyName,
		Slug:         slug,
		OrgName:      companyName + " - HQ",
		OrgCode:      orgCodeFromSlug(slug),
		CurrencyCode: defaultCurrency,
		Roles:        SystemRoles,
	}

	res, err := s.store.Bootstrap(ctx, boot)
	if errors.Is(err, ErrSlugTaken) {
		// The unique constraint is the real safety net under concurrent
		// signups; one retry with a disambiguated slug, then give up.
		boot.Slug = disambiguateSlug(slug)
		boot.OrgCode = orgCodeFromSlug(boot.Slug)
		res, err = s.store.Bootstrap(ctx, boot)
	}
	if err != nil {
		return TokenPair{}, err
	}

	orgs := []OrganizationClaim{{
		ID:        res.Organization.ID,
		Name:      res.Organization.Name,
		Code:      res.Organization.Code,
		Role:      res.AdminRole.Name,
		IsDefault: true,
	}}
	return s.issuePair(res.User, orgs)
}

// Refresh redeems a refresh token for a new pair. Only the subject claim is
// trusted; the org list is rebuilt from the membership table.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	user, err := s.store.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUserInactive
		}
		return TokenPair{}, err
	}
	if user.Status != StatusActive {
		return TokenPair{}, ErrUserInactive
	}
	orgs, err := s.orgClaims(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return s.issuePair(user, orgs)
}

// AuthenticateAccess verifies a bearer access token and reloads the user,
// rejecting tokens whose subject is gone or no longer active.
func (s *Service) AuthenticateAccess(ctx context.Context, token string) (User, *AccessClaims, error) {
	claims, err := s.codec.VerifyAccess(token)
	if err != nil {
		return User{}, nil, ErrInvalidToken
	}
	user, err := s.store.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, nil, ErrInvalidToken
		}
		return User{}, nil, err
	}
	if user.Status != StatusActive {
		return User{}, nil, ErrUserInactive
	}
	return user, claims, nil
}

// Profile assembles the read view of a user with its org membership list.
func (s *Service) Profile(ctx context.Context, user User) (Profile, error) {
	orgs, err := s.orgClaims(ctx, user.ID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:              user.ID,
		CustomerID:      user.CustomerID,
		Email:           user.Email,
		DisplayName:     user.DisplayName,
		Status:          user.Status,
		IsCustomerAdmin: user.IsCustomerAdmin,
		LastLoginAt:     user.LastLoginAt,
		CreatedAt:       user.CreatedAt,
		Organizations:   orgs,
	}, nil
}

func (s *Service) orgClaims(ctx context.Context, userID string) ([]OrganizationClaim, error) {
	memberships, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	orgs := make([]OrganizationClaim, 0, len(memberships))
	for _, m := range memberships {
		orgs = append(orgs, OrganizationClaim{
			ID:        m.OrganizationID,
			Name:      m.OrganizationName,
			Code:      m.OrganizationCode,
			Role:      m.RoleName,
			IsDefault: m.IsDefault,
		})
	}
	return orgs, nil
}

func (s *Service) issuePair(user User, orgs []OrganizationClaim) (TokenPair, error) {
	access, _, err := s.codec.IssueAccess(user, orgs)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.codec.IssueRefresh(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
	}, nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts text to a URL-safe slug, truncated to the column limit.
func Slugify(text string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(text), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	return slug
}

func disambiguateSlug(slug string) string {
	buf := make([]byte, slugDisambiguation)
	_, _ = rand.Read(buf)
	suffix := hex.EncodeToString(buf)
	if len(slug)+len(suffix)+1 > maxSlugLen {
		slug = slug[:maxSlugLen-len(suffix)-1]
	}
	return slug + "-" + suffix
}

func orgCodeFromSlug(slug string) string {
	code := strings.ReplaceAll(slug, "-", "")
	if len(code) > maxOrgCodeLen {
		code = code[:maxOrgCodeLen]
	}
	return strings.ToUpper(code)
}
