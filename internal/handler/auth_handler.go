package handler

import (
	"net/http"

	"crm-service/internal/model"
	"crm-service/internal/service"
	"crm-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// LoginRequest carries staff credentials
type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

// UserRequest is a new staff account
type UserRequest struct {
	Username    string `json:"username" validate:"required,max=150"`
	Email       string `json:"email" validate:"omitempty,email"`
	FirstName   string `json:"first_name" validate:"max=150"`
	LastName    string `json:"last_name" validate:"max=150"`
	Password    string `json:"password" validate:"required,min=8"`
	IsSuperuser bool   `json:"is_superuser"`
}

func userResponse(u *model.User) echo.Map {
	return echo.Map{
		"id":           u.ID,
		"username":     u.Username,
		"email":        u.Email,
		"name":         u.FullName(),
		"is_superuser": u.IsSuperuser,
	}
}

// Login exchanges a username and password for a bearer token
func (h *Handler) Login(c echo.Context) error {
	log := logger.FromEcho(c)

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse login request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	user, err := h.Users.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return fail(c, err, "User not found")
	}

	token, err := h.JWT.GenerateToken(user.ID, user.Username, user.IsStaff, user.IsSuperuser)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user":  userResponse(user),
	})
}

// ListManagers returns the staff users that can be assigned to leads
func (h *Handler) ListManagers(c echo.Context) error {
	users, err := h.Users.ListManagers(c.Request().Context())
	if err != nil {
		return fail(c, err, "User not found")
	}
	managers := make([]echo.Map, 0, len(users))
	for i := range users {
		managers = append(managers, userResponse(&users[i]))
	}
	return c.JSON(http.StatusOK, managers)
}

// CreateUser adds a staff account
func (h *Handler) CreateUser(c echo.Context) error {
	log := logger.FromEcho(c)

	var req UserRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse user request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	user, err := h.Users.CreateUser(c.Request().Context(), actor(c), service.UserInput{
		Username:    req.Username,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Password:    req.Password,
		IsSuperuser: req.IsSuperuser,
	})
	if err != nil {
		return fail(c, err, "User not found")
	}
	return c.JSON(http.StatusCreated, userResponse(user))
}

// DeleteUser removes a staff account
func (h *Handler) DeleteUser(c echo.Context) error {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "User not found"})
	}
	if err := h.Users.DeleteUser(c.Request().Context(), actor(c), id); err != nil {
		return fail(c, err, "User not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "User deleted successfully"})
}
