package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arkhazla/authcore/services/token"
)

const (
	IdentityKey = "_auth_identity"
	ClaimsKey   = "_auth_claims"
)

// RequireAccessToken guards a route with bearer access-token verification.
// Expired tokens get a distinct message so clients can trigger refresh
// recovery instead of a hard logout.
func RequireAccessToken(tokens *token.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Access token required")
			}

			claims, err := tokens.VerifyAccess(tokenString)
			if err != nil {
				switch err {
				case token.ErrExpiredToken:
					return echo.NewHTTPError(http.StatusUnauthorized, "Access token has expired")
				case token.ErrMalformedToken:
					return echo.NewHTTPError(http.StatusUnauthorized, "Malformed access token")
				case token.ErrInvalidSignature:
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid access token signature")
				default:
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid access token")
				}
			}

			c.Set(IdentityKey, claims.Identity())
			c.Set(ClaimsKey, claims)

			return next(c)
		}
	}
}

func GetIdentity(c echo.Context) token.Identity {
	if identity, ok := c.Get(IdentityKey).(token.Identity); ok {
		return identity
	}
	return token.Identity{}
}

func GetClaims(c echo.Context) *token.Claims {
	if claims, ok := c.Get(ClaimsKey).(*token.Claims); ok {
		return claims
	}
	return nil
}
