package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const guestPrefix = "guest-"

// Identify resolves the caller. A valid bearer token yields a user identity; an
// invalid one is rejected with 401. Without credentials the caller is a guest keyed
// by the X-Guest-Session header, which is generated when absent.
func Identify(tokenService *TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader != "" {
				tokenParts := strings.Split(authHeader, " ")
				if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
				}

				identity, err := tokenService.Validate(tokenParts[1])
				if err != nil {
					log.Debug().Err(err).Msg("Rejected bearer token")
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
				}
				c.Set(string(IdentityContextKey), identity)
				return next(c)
			}

			session := strings.TrimSpace(c.Request().Header.Get(GuestSessionHeader))
			if session == "" || len(session) > 128 {
				session = uuid.NewString()
			}
			c.Response().Header().Set(GuestSessionHeader, session)
			c.Set(string(IdentityContextKey), Identity{ID: guestPrefix + session, Guest: true})
			return next(c)
		}
	}
}

// RequireUser rejects guests. It must run after Identify.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := FromContext(c)
			if !ok || identity.Guest {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}
			return next(c)
		}
	}
}
