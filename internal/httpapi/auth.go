package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const actorHeader = "X-Actor"

// bearerToken returns the token of an "Authorization: Bearer" header
func bearerToken(c echo.Context) (string, bool) {
	scheme, token, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// isAdmin reports whether the request carries the configured admin token
func (s *Server) isAdmin(c echo.Context) bool {
	if s.opts.AdminToken == "" {
		return false
	}
	token, ok := bearerToken(c)
	return ok && secretEqual(token, s.opts.AdminToken)
}

func (s *Server) requireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.opts.AdminToken == "" {
				return fail(c, http.StatusInternalServerError, "configuration_error",
					"MATCHING_ADMIN_TOKEN is not configured")
			}
			if !s.isAdmin(c) {
				return fail(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
			}
			return next(c)
		}
	}
}

// actorFrom names who performs an operator action: the explicit value, then
// the X-Actor header.
func actorFrom(c echo.Context, explicit string) string {
	if a := strings.TrimSpace(explicit); a != "" {
		return a
	}
	return strings.TrimSpace(c.Request().Header.Get(actorHeader))
}
