package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-api/internal/auth"
	"github.com/iliyamo/account-api/internal/model"
	"github.com/iliyamo/account-api/internal/repository"
)

// LoginHandler bundles dependencies for the token-issuing endpoints.
type LoginHandler struct {
	Users *repository.UserRepo
	Codec *auth.Codec
}

func NewLoginHandler(users *repository.UserRepo, codec *auth.Codec) *LoginHandler {
	return &LoginHandler{Users: users, Codec: codec}
}

// tokenResp is the successful login body: a long-lived bearer token.
type tokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *LoginHandler) issueToken(c echo.Context, u model.User) error {
	token, err := h.Codec.Encode(auth.SessionClaims(u), auth.UnlimitedTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Failed to issue token."})
	}
	return c.JSON(http.StatusOK, tokenResp{AccessToken: token, TokenType: "bearer"})
}

// Creds exchanges form credentials (username = email, password) for a
// session token carrying the user's role as scope.
func (h *LoginHandler) Creds(c echo.Context) error {
	username := c.FormValue("username")
	password := c.FormValue("password")
	if username == "" || password == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "username and password are required."})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, username, true)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "User not found."})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Lookup failed."})
	}
	if !auth.VerifyPassword(u.HashedPassword, password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Invalid credentials."})
	}
	return h.issueToken(c, u)
}

// Code exchanges a short-lived magic-link code for a session token.  The
// code carries subject and expiry only; its subject may have no backing row
// yet (invite crashed between minting the id and creating the user), which
// is a plain 404, not a server error.
func (h *LoginHandler) Code(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "code is required."})
	}

	claims, err := h.Codec.Decode(code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenBadSignature):
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Token has expired."})
		default:
			return c.JSON(http.StatusNotAcceptable, echo.Map{"detail": "Invalid token."})
		}
	}
	payload, err := auth.ParseCallback(claims)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "Invalid token payload."})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.Get(ctx, payload.Sub, true)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "User not found."})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Lookup failed."})
	}
	return h.issueToken(c, u)
}

// Validate is a no-op pass-through: reaching it proves the token decoded
// and its scope matched the route's requirement.
func (h *LoginHandler) Validate(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
