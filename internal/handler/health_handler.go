package handler

import (
	"net/http"

	"crm-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthCheck handles the health check endpoint. ?check=db also pings the database.
func (h *Handler) HealthCheck(c echo.Context) error {
	if c.QueryParam("check") == "db" && h.Ping != nil {
		if err := h.Ping(); err != nil {
			logger.FromEcho(c).Error("Database health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, echo.Map{
				"status":   "unhealthy",
				"service":  h.ServiceName,
				"database": "unreachable",
			})
		}
		return c.JSON(http.StatusOK, echo.Map{
			"status":   "healthy",
			"service":  h.ServiceName,
			"database": "ok",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": h.ServiceName,
	})
}

// GetDashboard returns lead and task counts
func (h *Handler) GetDashboard(c echo.Context) error {
	summary, err := h.Dashboard.Summary(c.Request().Context())
	if err != nil {
		return fail(c, err, "Dashboard not found")
	}
	return c.JSON(http.StatusOK, summary)
}
