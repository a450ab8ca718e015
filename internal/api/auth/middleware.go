package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// RequireAuth verifies the bearer token and stores the reviewer on the context
func RequireAuth(tokenService *TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			reviewer, err := tokenService.ValidateAccessToken(tokenParts[1])
			if err != nil {
				log.Debug().Err(err).Str("path", c.Path()).Msg("Rejected access token")
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(string(ReviewerContextKey), reviewer)
			return next(c)
		}
	}
}

// RequirePermission must run after RequireAuth
func RequirePermission(permission Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !GetReviewer(c).HasPermission(permission) {
				return echo.NewHTTPError(http.StatusForbidden, ErrInsufficientPermissions.Error())
			}
			return next(c)
		}
	}
}
