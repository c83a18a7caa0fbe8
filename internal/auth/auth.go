// Package auth resolves bearer tokens to user ids for the HTTP and websocket
// endpoints.
package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/autoqa/internal/credential"
)

const userKey = "autoqa.user"

// Authenticator maps bearer tokens to users. With no tokens configured every
// request is anonymous and allowed.
type Authenticator struct {
	tokens map[string]string
}

// New creates an authenticator from a token to user map.
func New(tokens map[string]string) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Enabled reports whether tokens are required.
func (a *Authenticator) Enabled() bool {
	return len(a.tokens) > 0
}

// User resolves an Authorization header value.
func (a *Authenticator) User(header string) (string, bool) {
	token := credential.FromHeader(header)
	if token == "" {
		return "", false
	}
	user, ok := a.tokens[token]
	return user, ok
}

// Middleware rejects requests without a valid token when auth is enabled and
// stores the user on the context.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !a.Enabled() {
				return next(c)
			}
			user, ok := a.User(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or missing bearer token"})
			}
			SetUser(c, user)
			return next(c)
		}
	}
}

// SetUser stores the authenticated user on the context.
func SetUser(c echo.Context, user string) {
	c.Set(userKey, user)
}

// UserFrom returns the authenticated user, or "" for anonymous requests.
func UserFrom(c echo.Context) string {
	user, _ := c.Get(userKey).(string)
	return user
}
