// Package http provides the HTTP server of autoqa.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/autoqa/internal/auth"
	"github.com/xiaot623/gogo/autoqa/internal/service"
	"github.com/xiaot623/gogo/autoqa/internal/transport/http/api"
	"github.com/xiaot623/gogo/autoqa/internal/ws"
)

// NewServer creates and configures the HTTP server: the REST API and the
// run event stream, both behind bearer authentication.
func NewServer(svc *service.Service, stream *ws.Server, authn *auth.Authenticator) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	apiHandler := api.NewHandler(svc)

	// Register Routes
	apiHandler.RegisterRoutes(e, authn.Middleware())
	stream.RegisterRoutes(e, authn.Middleware())

	return e
}
