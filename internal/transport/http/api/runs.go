package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/autoqa/internal/auth"
	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// CreateRun creates a test run and starts executing it.
// POST /api/test-runs
func (h *Handler) CreateRun(c echo.Context) error {
	var req domain.CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	run, err := h.service.CreateRun(c.Request().Context(), auth.UserFrom(c), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, run)
}

// ListRuns lists test runs, newest first.
// GET /api/test-runs?skip=0&limit=100
func (h *Handler) ListRuns(c echo.Context) error {
	skip, err := queryInt(c, "skip", 0)
	if err != nil || skip < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "skip must be a non-negative integer"})
	}
	limit, err := queryInt(c, "limit", defaultLimit)
	if err != nil || limit < 1 || limit > maxLimit {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
	}

	runs, err := h.service.ListRuns(c.Request().Context(), auth.UserFrom(c), skip, limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun gets a test run.
// GET /api/test-runs/:id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), auth.UserFrom(c), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// GetTestCases gets the test cases of a run.
// GET /api/test-runs/:id/cases
func (h *Handler) GetTestCases(c echo.Context) error {
	cases, err := h.service.GetTestCases(c.Request().Context(), auth.UserFrom(c), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, cases)
}

// GetTestLogs gets the log of a run.
// GET /api/test-runs/:id/logs
func (h *Handler) GetTestLogs(c echo.Context) error {
	logs, err := h.service.GetTestLogs(c.Request().Context(), auth.UserFrom(c), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}

// GetTestPlan gets the generated plan of a run.
// GET /api/test-runs/:id/plan
func (h *Handler) GetTestPlan(c echo.Context) error {
	plan, err := h.service.GetTestPlan(c.Request().Context(), auth.UserFrom(c), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, plan)
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
