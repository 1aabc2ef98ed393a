package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/authclient"
	"github.com/Skotchmaster/storefront/internal/logging"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"

	principalKey = "principal"
)

type Refresher interface {
	RefreshTokens(ctx context.Context, refreshToken, accessToken string) (*authclient.RefreshResponse, error)
}

// RoleLookup returns roles granted in the database on top of the token role.
type RoleLookup interface {
	RolesFor(ctx context.Context, userID uuid.UUID) ([]string, error)
}

type Middleware struct {
	Secret    []byte
	Refresher Refresher
	Roles     RoleLookup
}

func NewMiddleware(secret []byte, refresher Refresher, roles RoleLookup) *Middleware {
	return &Middleware{Secret: secret, Refresher: refresher, Roles: roles}
}

var (
	errMissingToken = echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	errInvalidToken = echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
)

// PrincipalFrom returns the caller resolved by RequireAuth or OptionalAuth,
// or the anonymous principal.
func PrincipalFrom(c echo.Context) Principal {
	if p, ok := c.Get(principalKey).(Principal); ok {
		return p
	}
	return Principal{}
}

func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := m.authenticate(c)
		if err != nil {
			return err
		}
		c.Set(principalKey, p)
		return next(c)
	}
}

// OptionalAuth resolves a principal when credentials are present and lets
// anonymous requests through.
func (m *Middleware) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := m.authenticate(c)
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) && he.Code == http.StatusUnauthorized {
				c.Set(principalKey, Principal{})
				return next(c)
			}
			return err
		}
		c.Set(principalKey, p)
		return next(c)
	}
}

// Require must run after RequireAuth.
func (m *Middleware) Require(capability Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if !p.Authenticated() {
				return errMissingToken
			}
			if !p.Can(capability) {
				return echo.NewHTTPError(http.StatusForbidden, string(capability)+" access required")
			}
			return next(c)
		}
	}
}

func (m *Middleware) authenticate(c echo.Context) (Principal, error) {
	claims, err := m.claims(c)
	if err != nil {
		return Principal{}, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		clearAuthCookies(c)
		return Principal{}, errInvalidToken
	}

	roles := []string{claims.Role}
	if m.Roles != nil {
		extra, err := m.Roles.RolesFor(c.Request().Context(), userID)
		if err != nil {
			logging.FromContext(c.Request().Context()).Error("role_lookup_error", "status", 500, "user_id", userID, "error", err)
			return Principal{}, echo.NewHTTPError(http.StatusInternalServerError, "role lookup failed")
		}
		roles = append(roles, extra...)
	}
	return NewPrincipal(userID, roles...), nil
}

func accessToken(c echo.Context) string {
	if ck, err := c.Cookie(AccessCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// claims validates the access token and rotates it through the auth
// service when it has only expired.
func (m *Middleware) claims(c echo.Context) (*AccessClaims, error) {
	token := accessToken(c)
	if token == "" {
		return nil, errMissingToken
	}

	claims, err := AccessClaimsFromToken(token, m.Secret)
	if err == nil {
		return claims, nil
	}

	if !errors.Is(err, jwt.ErrTokenExpired) || m.Refresher == nil {
		clearAuthCookies(c)
		return nil, errInvalidToken
	}

	refreshCookie, rErr := c.Cookie(RefreshCookie)
	if rErr != nil || refreshCookie.Value == "" {
		clearAuthCookies(c)
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
	}

	resp, refErr := m.Refresher.RefreshTokens(c.Request().Context(), refreshCookie.Value, token)
	if refErr != nil {
		clearAuthCookies(c)
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "refresh failed: "+refErr.Error())
	}

	c.SetCookie(CreateCookie(AccessCookie, resp.AccessToken, "/", time.Unix(resp.AccessExp, 0)))
	c.SetCookie(CreateCookie(RefreshCookie, resp.RefreshToken, "/", time.Unix(resp.RefreshExp, 0)))

	newClaims, err := AccessClaimsFromToken(resp.AccessToken, m.Secret)
	if err != nil {
		clearAuthCookies(c)
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "new access token invalid")
	}
	return newClaims, nil
}

func clearAuthCookies(c echo.Context) {
	c.SetCookie(DeleteCookie(AccessCookie, "/"))
	c.SetCookie(DeleteCookie(RefreshCookie, "/"))
}
