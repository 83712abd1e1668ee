package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	authpkg "github.com/octobees/lead-capture/internal/auth"
)

// SessionCookieName carries the admin session token in browsers.
const SessionCookieName = "admin_session"

// AdminSession accepts a session token from the admin_session cookie or a bearer header
// and stores the admin identity in the request context.
func AdminSession(manager *authpkg.SessionManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := sessionToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			}

			claims, err := manager.Parse(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or expired session"})
			}

			c.Set(ContextKeyAdminUsername, claims.Username)
			c.Set(ContextKeyAdminRole, claims.Role)

			return next(c)
		}
	}
}

// RequireRole enforces that the session carries the expected role.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			value, ok := c.Get(ContextKeyAdminRole).(string)
			if !ok || value == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "missing role"})
			}
			if value != role {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
			}
			return next(c)
		}
	}
}

// AdminUsernameFromContext returns the authenticated admin, if any.
func AdminUsernameFromContext(c echo.Context) string {
	if val, ok := c.Get(ContextKeyAdminUsername).(string); ok {
		return val
	}
	return ""
}

// sessionToken prefers the Authorization header over the cookie.
func sessionToken(c echo.Context) (string, bool) {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}

	cookie, err := c.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
