package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func serve(a *Authenticator, header string) (*httptest.ResponseRecorder, string) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var user string
	h := a.Middleware()(func(c echo.Context) error {
		user = UserFrom(c)
		return c.NoContent(http.StatusNoContent)
	})
	_ = h(c)
	return rec, user
}

func TestMiddlewareResolvesUser(t *testing.T) {
	a := New(map[string]string{"tok": "alice"})

	rec, user := serve(a, "Bearer tok")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "alice", user)

	rec, _ = serve(a, "bearer tok")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = serve(a, "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serve(a, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareDisabledAllowsAnonymous(t *testing.T) {
	a := New(nil)
	assert.False(t, a.Enabled())

	rec, user := serve(a, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, user)
}
