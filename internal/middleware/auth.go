package middleware // middleware provides shared request processing for handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-api/internal/auth"
	"github.com/iliyamo/account-api/internal/model"
)

// PayloadKey is the context key under which the decoded session payload is
// stored for downstream handlers.
const PayloadKey = "jwt_payload"

// RequireScope returns middleware that authenticates the Bearer token and
// enforces that its scope is one of the given roles.  The status contract
// is fixed: missing, expired and bad-signature tokens are all 401,
// unparseable tokens 406, structurally wrong payloads 422 and wrong scopes
// 403.  Every denial carries a WWW-Authenticate challenge echoing the
// scopes the route requires.
func RequireScope(codec *auth.Codec, scopes ...model.Role) echo.MiddlewareFunc {
	challenge := auth.Challenge(scopes...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, challenge)
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Not authenticated."})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims, err := codec.Decode(raw)
			if err != nil {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, challenge)
				switch {
				case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenBadSignature):
					return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Token has expired."})
				default:
					return c.JSON(http.StatusNotAcceptable, echo.Map{"detail": "Invalid token."})
				}
			}

			payload, err := auth.ParseSession(claims)
			if err != nil {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, challenge)
				return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "Invalid token payload."})
			}

			if err := auth.Authorize(payload, scopes...); err != nil {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, challenge)
				return c.JSON(http.StatusForbidden, echo.Map{"detail": "Incompatible token scope."})
			}

			c.Set(PayloadKey, payload)
			return next(c)
		}
	}
}

// Payload retrieves the session payload stored by RequireScope.
func Payload(c echo.Context) (auth.JWTPayload, bool) {
	p, ok := c.Get(PayloadKey).(auth.JWTPayload)
	return p, ok
}
