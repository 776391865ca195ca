package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-api/internal/auth"
	"github.com/iliyamo/account-api/internal/config"
	"github.com/iliyamo/account-api/internal/middleware"
	"github.com/iliyamo/account-api/internal/model"
	"github.com/iliyamo/account-api/internal/repository"
	"github.com/iliyamo/account-api/internal/storage"
)

// maxPictureBytes bounds profile-picture uploads.
const maxPictureBytes = 8 << 20

// formBool parses the truthy spellings clients send for checkbox-style
// form fields.
func formBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "t", "y", "true", "yes", "on":
		return true
	}
	return false
}

// UserHandler bundles dependencies for account management endpoints.
type UserHandler struct {
	Cfg       config.Config
	Users     *repository.UserRepo
	Codec     *auth.Codec
	Email     EmailSender
	Storage   ObjectStore
	Analytics AnalyticsSink
}

func NewUserHandler(cfg config.Config, users *repository.UserRepo, codec *auth.Codec,
	email EmailSender, store ObjectStore, sink AnalyticsSink) *UserHandler {
	return &UserHandler{Cfg: cfg, Users: users, Codec: codec, Email: email, Storage: store, Analytics: sink}
}

// userResp is the public shape of a user row.  The hash never leaves the
// repository layer.
type userResp struct {
	ID         uint64     `json:"id"`
	Email      string     `json:"email"`
	Role       model.Role `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
	PictureURL *string    `json:"picture_url"`
}

// Invite creates a user as superadmin, optionally emailing a magic-link
// code.  Ordering is deliberate: the email goes out before the row is
// inserted, so a failed send never leaves an orphaned account.  The code
// embeds an id minted ahead of the insert; until the insert commits that id
// dangles and the code login reports 404.
func (h *UserHandler) Invite(c echo.Context) error {
	email := c.FormValue("email")
	role := model.Role(c.FormValue("role"))
	password := c.FormValue("password")
	sendMagicLink := formBool(c.FormValue("send_magic_link"))

	if email == "" || !strings.Contains(email, "@") || !model.CheckLen("email", email) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "A valid email is required."})
	}
	if role == "" {
		role = model.RoleMember
	}
	if !role.Valid() {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "Unknown role."})
	}
	if password != "" && !model.CheckLen("hashed_password", password) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "Password must be 4 to 60 characters."})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	var preID uint64
	if sendMagicLink {
		id, err := h.Users.NextID(ctx)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Failed to allocate user id."})
		}
		preID = id
		// Short-lived code without a scope claim: usable on /login/code only.
		code, err := h.Codec.Encode(auth.CodeClaims(preID), auth.CodeTTL)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Failed to issue code."})
		}
		link := h.Cfg.BackendHost + "/api/v1/login/code?code=" + url.QueryEscape(code)
		if err := h.Email.SendLink(ctx, email, link); err != nil {
			return c.JSON(http.StatusBadGateway, echo.Map{"detail": "Failed to send email"})
		}
	}

	hashed := ""
	if password != "" {
		hash, err := auth.HashPassword(password, h.Cfg.BcryptCost)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Failed to hash password."})
		}
		hashed = hash
	} else {
		// No password given: store random text so nothing verifies against
		// it until the user logs in via the code and sets one.
		random, err := auth.RandomPassword(16)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Failed to create placeholder."})
		}
		hashed = random
	}

	u := model.User{ID: preID, Email: email, HashedPassword: hashed, Role: role}
	if err := h.Users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"detail": "Email already exists."})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Failed to create user."})
	}

	_ = h.Analytics.Alias(ctx, u.ID, u.Email)
	_ = h.Analytics.Capture(ctx, u.ID, "user-creation")

	return c.JSON(http.StatusCreated, userResp{
		ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt,
	})
}

// FetchAll lists every user with a derived picture URL.
func (h *UserHandler) FetchAll(c echo.Context) error {
	p, ok := middleware.Payload(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Not authenticated."})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	_ = h.Analytics.Capture(ctx, p.Sub, "user-fetch-all")

	users, err := h.Users.FetchAll(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Listing failed."})
	}

	out := make([]userResp, 0, len(users))
	for _, u := range users {
		resp := userResp{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
		if u.PictureBKey != "" {
			link, err := h.Storage.PublicURL(ctx, u.PictureBKey)
			if err != nil {
				if errors.Is(err, storage.ErrObjectNotFound) {
					return c.JSON(http.StatusNotFound, echo.Map{"detail": "File cannot be found on the bucket storage."})
				}
				return c.JSON(http.StatusBadGateway, echo.Map{"detail": "Storage provider failure."})
			}
			resp.PictureURL = &link
		}
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, out)
}

// DeleteMe removes the caller's own account; the id comes from the token.
func (h *UserHandler) DeleteMe(c echo.Context) error {
	p, ok := middleware.Payload(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Not authenticated."})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.Delete(ctx, p.Sub); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "User not found."})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Deletion failed."})
	}
	_ = h.Analytics.Capture(ctx, p.Sub, "user-deletion")
	return c.NoContent(http.StatusNoContent)
}

// UpdatePassword rehashes and persists the caller's password.
func (h *UserHandler) UpdatePassword(c echo.Context) error {
	p, ok := middleware.Payload(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Not authenticated."})
	}
	password := c.FormValue("password")
	if !model.CheckLen("hashed_password", password) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "Password must be 4 to 60 characters."})
	}

	hash, err := auth.HashPassword(password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Failed to hash password."})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.Update(ctx, p.Sub, repository.ColHashedPassword, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "User not found."})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Update failed."})
	}
	_ = h.Analytics.Capture(ctx, p.Sub, "user-password-update")
	return c.NoContent(http.StatusOK)
}

// UpdatePicture uploads a JPEG/PNG profile picture and persists its bucket
// key.  The previous object, if any, is left in the bucket.
func (h *UserHandler) UpdatePicture(c echo.Context) error {
	p, ok := middleware.Payload(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Not authenticated."})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "A file is required."})
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType != "image/jpeg" && contentType != "image/png" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "Invalid file type"})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Failed to read file."})
	}
	defer f.Close()
	// Read one byte past the cap so an oversized upload is detected instead
	// of being truncated to a corrupt object.
	data, err := io.ReadAll(io.LimitReader(f, maxPictureBytes+1))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Failed to read file."})
	}
	if len(data) > maxPictureBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"detail": "File exceeds the size limit."})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	key := storage.ObjectKey(data, contentType)
	if err := h.Storage.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"detail": "Storage provider failure."})
	}

	if err := h.Users.Update(ctx, p.Sub, repository.ColPictureBKey, key); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "User not found."})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Update failed."})
	}
	_ = h.Analytics.Capture(ctx, p.Sub, "user-picture-update")
	return c.NoContent(http.StatusOK)
}
