package middleware

import (
	"net/http"
	"strings"

	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const claimsKey = "claims"

// AuthMiddleware validates the bearer token and stores the staff claims
func AuthMiddleware(jwt *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			// Get the Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := jwt.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}
			if !claims.IsStaff {
				log.Warn("Token does not belong to a staff user", zap.Uint("user_id", claims.UserID))
				return c.JSON(http.StatusForbidden, echo.Map{"error": "staff access required"})
			}

			c.Set(claimsKey, claims)
			c.Set("user_id", claims.UserID)
			userLog := log.With(zap.Uint("user_id", claims.UserID))
			c.Set("logger", userLog)
			c.SetRequest(c.Request().WithContext(logger.WithContext(c.Request().Context(), userLog)))

			return next(c)
		}
	}
}

// GetClaims returns the claims stored by AuthMiddleware
func GetClaims(c echo.Context) (*jwtutil.StaffClaims, bool) {
	claims, ok := c.Get(claimsKey).(*jwtutil.StaffClaims)
	return claims, ok && claims != nil
}

// RequireSuperuser rejects requests from users without the superuser flag
func RequireSuperuser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, ok := GetClaims(c)
		if !ok || !claims.IsSuperuser {
			logger.FromEcho(c).Warn("Superuser access denied")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		}
		return next(c)
	}
}
