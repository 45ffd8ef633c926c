package handler

import (
	"errors"
	"net/http"
	"strconv"

	"crm-service/internal/middleware"
	"crm-service/internal/service"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Handler serves the CRM HTTP API
type Handler struct {
	ServiceName string
	Leads       *service.LeadService
	Activities  *service.ActivityService
	Catalog     *service.CatalogService
	Users       *service.UserService
	Dashboard   *service.DashboardService
	JWT         *jwtutil.JWTUtil
	// Ping checks the database for /health?check=db
	Ping func() error
}

// RegisterRoutes mounts every route on e
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/health", h.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(prometheus.GetPrometheusHandler()))
	e.POST("/auth/login", h.Login)

	api := e.Group("/api", middleware.AuthMiddleware(h.JWT))

	api.GET("/dashboard", h.GetDashboard)

	// Leads
	api.GET("/leads", h.ListLeads)
	api.POST("/leads", h.CreateLead)
	api.GET("/leads/export", h.ExportLeads)
	api.GET("/leads/:id", h.GetLead)
	api.PUT("/leads/:id", h.UpdateLead)
	api.DELETE("/leads/:id", h.DeleteLead, middleware.RequireSuperuser)
	api.POST("/leads/:id/activities", h.AddActivity)

	// Tasks
	api.POST("/activities/:id/toggle-complete", h.ToggleTaskComplete)
	api.POST("/activities/:id/notes", h.AddTaskNote)
	api.POST("/activities/:id/postpone", h.PostponeTask)
	api.GET("/tasks", h.ListTasks)
	api.GET("/tasks/leads", h.ListTaskLeads)

	// Call recordings
	api.GET("/call-recordings", h.ListCallRecordings)
	api.GET("/call-recordings/:id/file", h.DownloadRecording)

	// Catalog
	api.GET("/categories", h.ListCategories)
	api.GET("/products", h.ListProducts)
	api.POST("/products", h.CreateProduct)
	api.GET("/products/:id", h.GetProduct)
	api.PUT("/products/:id", h.UpdateProduct)
	api.DELETE("/products/:id", h.DeleteProduct)

	// Staff users
	api.GET("/users/managers", h.ListManagers)
	api.POST("/users", h.CreateUser, middleware.RequireSuperuser)
	api.DELETE("/users/:id", h.DeleteUser, middleware.RequireSuperuser)
}

// actor returns the authenticated staff user of the request
func actor(c echo.Context) service.Actor {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return service.Actor{}
	}
	return service.Actor{UserID: claims.UserID, IsSuperuser: claims.IsSuperuser}
}

// fail maps a service error onto the HTTP response
func fail(c echo.Context, err error, notFound string) error {
	log := logger.FromEcho(c)

	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Reason})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": notFound})
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		log.Warn("Access denied", zap.String("path", c.Path()))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	log.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

func parseUintParam(c echo.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
