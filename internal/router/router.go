package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-api/internal/auth"
	"github.com/iliyamo/account-api/internal/handler"
	"github.com/iliyamo/account-api/internal/middleware"
	"github.com/iliyamo/account-api/internal/model"
)

// APIPrefix is the version prefix shared by every endpoint except the
// health check.
const APIPrefix = "/api/v1"

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAPI wires the login and user endpoints under /api/v1.  The scope
// guard composes in front of each protected route with exactly the scopes
// that route requires; the rate limiter (may be a pass-through) covers the
// two unauthenticated login routes.
func RegisterAPI(e *echo.Echo, login *handler.LoginHandler, users *handler.UserHandler,
	codec *auth.Codec, limiter echo.MiddlewareFunc) {

	both := middleware.RequireScope(codec, model.RoleSuperadmin, model.RoleMember)
	superadminOnly := middleware.RequireScope(codec, model.RoleSuperadmin)

	lg := e.Group(APIPrefix + "/login")
	lg.POST("/creds", login.Creds, limiter)
	lg.GET("/code", login.Code, limiter)
	lg.GET("/validate", login.Validate, both)

	ug := e.Group(APIPrefix + "/users")
	ug.POST("/invite", users.Invite, superadminOnly)
	ug.GET("/", users.FetchAll, superadminOnly)
	ug.DELETE("/me", users.DeleteMe, both)
	ug.PATCH("/me/password", users.UpdatePassword, both)
	ug.PATCH("/me/picture", users.UpdatePicture, both)
}
