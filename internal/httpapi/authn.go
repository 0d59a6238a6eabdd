package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"fincore.org/internal/identity"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	// orgHeader selects the acting organization for the request.
	orgHeader = "X-Organization-Id"
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/signup",
	"/v1/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		user, claims, err := a.identity.AuthenticateAccess(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrUserInactive):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := identity.ContextWithUser(r.Context(), user)
		ctx = identity.ContextWithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveOrg resolves the acting organization from the selector header. The
// handler owns the error response; callers just return on err != nil.
func (a *API) resolveOrg(w http.ResponseWriter, r *http.Request, user identity.User) (identity.OrgContext, error) {
	oc, err := a.resolver.Resolve(r.Context(), user, strings.TrimSpace(r.Header.Get(orgHeader)))
	if err != nil {
		handleIdentityError(w, r, err)
		return identity.OrgContext{}, err
	}
	return oc, nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
