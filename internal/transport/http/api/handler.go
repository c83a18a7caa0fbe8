// Package api provides the REST handlers for test runs.
package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/autoqa/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the API routes. mw guards the test run routes.
func (h *Handler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	g := e.Group("/api/test-runs", mw...)
	g.POST("", h.CreateRun)
	g.GET("", h.ListRuns)
	g.GET("/:id", h.GetRun)
	g.GET("/:id/cases", h.GetTestCases)
	g.GET("/:id/logs", h.GetTestLogs)
	g.GET("/:id/plan", h.GetTestPlan)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// errorResponse maps service errors to status codes.
func errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	}
	log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
