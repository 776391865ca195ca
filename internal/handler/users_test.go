package handler

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/account-api/internal/auth"
	"github.com/iliyamo/account-api/internal/config"
	"github.com/iliyamo/account-api/internal/middleware"
	"github.com/iliyamo/account-api/internal/model"
	"github.com/iliyamo/account-api/internal/repository"
	"github.com/iliyamo/account-api/internal/storage"
)

const insertUser = "INSERT INTO users (id, email, hashed_password, role, created_at, picture_bkey) VALUES (?,?,?,?,?,NULL)"
const insertSeq = "INSERT INTO user_ids () VALUES ()"
const selectAll = "SELECT id, email, hashed_password, role, created_at, picture_bkey FROM users ORDER BY id"

type fakeEmail struct {
	err  error
	to   string
	link string
}

func (f *fakeEmail) SendLink(_ context.Context, to, link string) error {
	if f.err != nil {
		return f.err
	}
	f.to, f.link = to, link
	return nil
}

type fakeStore struct {
	uploadErr error
	urlErr    error
	keys      []string
	urls      map[string]string
}

func (f *fakeStore) Upload(_ context.Context, key string, body io.Reader, _ string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	_, _ = io.Copy(io.Discard, body)
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeStore) PublicURL(_ context.Context, key string) (string, error) {
	if f.urlErr != nil {
		return "", f.urlErr
	}
	return f.urls[key], nil
}

type fakeSink struct {
	events  []string
	aliased map[uint64]string
}

func (f *fakeSink) Capture(_ context.Context, userID uint64, event string) error {
	f.events = append(f.events, fmt.Sprintf("%d:%s", userID, event))
	return nil
}

func (f *fakeSink) Alias(_ context.Context, userID uint64, email string) error {
	if f.aliased == nil {
		f.aliased = map[uint64]string{}
	}
	f.aliased[userID] = email
	return nil
}

type userEnv struct {
	h     *UserHandler
	mock  sqlmock.Sqlmock
	email *fakeEmail
	store *fakeStore
	sink  *fakeSink
}

func newUserEnv(t *testing.T) *userEnv {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{BcryptCost: bcrypt.MinCost, BackendHost: "http://localhost:8000"}
	env := &userEnv{
		mock:  mock,
		email: &fakeEmail{},
		store: &fakeStore{urls: map[string]string{}},
		sink:  &fakeSink{},
	}
	env.h = NewUserHandler(cfg, repository.NewUserRepo(db), auth.NewCodec("test-secret"),
		env.email, env.store, env.sink)
	return env
}

// asUser injects a verified payload the way the auth middleware would.
func asUser(id uint64, role model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(middleware.PayloadKey, auth.JWTPayload{
				CallbackJWT: auth.CallbackJWT{Sub: id, Exp: time.Now().Add(time.Hour).Unix()},
				Scope:       role,
			})
			return next(c)
		}
	}
}

func TestInviteWithMagicLink(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.POST("/users/invite", env.h.Invite, asUser(1, model.RoleSuperadmin))

	env.mock.ExpectExec(insertSeq).WillReturnResult(sqlmock.NewResult(7, 1))
	env.mock.ExpectExec(insertUser).
		WithArgs(uint64(7), "new@x.com", sqlmock.AnyArg(), "member", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := postForm(e, "/users/invite", url.Values{
		"email":           {"new@x.com"},
		"send_magic_link": {"true"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":7`)
	assert.NotContains(t, rec.Body.String(), "hashed_password")

	// The emailed link carries a code that resolves back to the minted id.
	assert.Equal(t, "new@x.com", env.email.to)
	require.Contains(t, env.email.link, "http://localhost:8000/api/v1/login/code?code=")
	raw := strings.TrimPrefix(env.email.link, "http://localhost:8000/api/v1/login/code?code=")
	code, err := url.QueryUnescape(raw)
	require.NoError(t, err)
	claims, err := env.h.Codec.Decode(code)
	require.NoError(t, err)
	cb, err := auth.ParseCallback(claims)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cb.Sub)

	assert.Contains(t, env.sink.events, "7:user-creation")
	assert.Equal(t, "new@x.com", env.sink.aliased[7])
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestInviteEmailFailureSkipsInsert(t *testing.T) {
	env := newUserEnv(t)
	env.email.err = errors.New("smtp down")
	e := echo.New()
	e.POST("/users/invite", env.h.Invite, asUser(1, model.RoleSuperadmin))

	// Only the id mint hits the database; the user row must not be written.
	env.mock.ExpectExec(insertSeq).WillReturnResult(sqlmock.NewResult(8, 1))

	rec := postForm(e, "/users/invite", url.Values{
		"email":           {"new@x.com"},
		"send_magic_link": {"true"},
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to send email")
	assert.Empty(t, env.sink.events)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestFormBool(t *testing.T) {
	for _, v := range []string{"1", "true", "True", "TRUE", "t", "y", "yes", "YES", "on", "ON"} {
		assert.True(t, formBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "off", "no", "maybe"} {
		assert.False(t, formBool(v), v)
	}
}

func TestInviteMagicLinkCheckboxValue(t *testing.T) {
	// HTML checkboxes submit "on"; it must count as a magic-link request.
	env := newUserEnv(t)
	e := echo.New()
	e.POST("/users/invite", env.h.Invite, asUser(1, model.RoleSuperadmin))

	env.mock.ExpectExec(insertSeq).WillReturnResult(sqlmock.NewResult(9, 1))
	env.mock.ExpectExec(insertUser).
		WithArgs(uint64(9), "new@x.com", sqlmock.AnyArg(), "member", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := postForm(e, "/users/invite", url.Values{
		"email":           {"new@x.com"},
		"send_magic_link": {"on"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "new@x.com", env.email.to)
	assert.NotEmpty(t, env.email.link)
}

func TestInviteWithPassword(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.POST("/users/invite", env.h.Invite, asUser(1, model.RoleSuperadmin))

	env.mock.ExpectExec(insertSeq).WillReturnResult(sqlmock.NewResult(2, 1))
	env.mock.ExpectExec(insertUser).
		WithArgs(uint64(2), "new@x.com", sqlmock.AnyArg(), "superadmin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := postForm(e, "/users/invite", url.Values{
		"email":    {"new@x.com"},
		"role":     {"superadmin"},
		"password": {"hunter2"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "", env.email.to)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestInviteDuplicateEmail(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.POST("/users/invite", env.h.Invite, asUser(1, model.RoleSuperadmin))

	env.mock.ExpectExec(insertSeq).WillReturnResult(sqlmock.NewResult(3, 1))
	env.mock.ExpectExec(insertUser).
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 'new@x.com' for key 'uq_users_email'"))

	rec := postForm(e, "/users/invite", url.Values{"email": {"new@x.com"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInviteValidation(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.POST("/users/invite", env.h.Invite, asUser(1, model.RoleSuperadmin))

	cases := []struct {
		name string
		form url.Values
	}{
		{"missing email", url.Values{}},
		{"not an email", url.Values{"email": {"plainstring"}}},
		{"unknown role", url.Values{"email": {"a@x.com"}, "role": {"owner"}}},
		{"short password", url.Values{"email": {"a@x.com"}, "password": {"abc"}}},
	}
	for _, tc := range cases {
		rec := postForm(e, "/users/invite", tc.form)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, tc.name)
	}
}

func TestFetchAllWithPictures(t *testing.T) {
	env := newUserEnv(t)
	env.store.urls["pic-key"] = "https://bucket.example/pic-key?sig=abc"
	e := echo.New()
	e.GET("/users", env.h.FetchAll, asUser(1, model.RoleSuperadmin))

	env.mock.ExpectQuery(selectAll).WillReturnRows(
		sqlmock.NewRows([]string{"id", "email", "hashed_password", "role", "created_at", "picture_bkey"}).
			AddRow(uint64(1), "root@x.com", "h", "superadmin", time.Now().UTC(), nil).
			AddRow(uint64(2), "member@x.com", "h", "member", time.Now().UTC(), "pic-key"))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"picture_url":null`)
	assert.Contains(t, rec.Body.String(), `"picture_url":"https://bucket.example/pic-key?sig=abc"`)
	assert.Contains(t, env.sink.events, "1:user-fetch-all")
}

func TestFetchAllMissingObject(t *testing.T) {
	env := newUserEnv(t)
	env.store.urlErr = storage.ErrObjectNotFound
	e := echo.New()
	e.GET("/users", env.h.FetchAll, asUser(1, model.RoleSuperadmin))

	env.mock.ExpectQuery(selectAll).WillReturnRows(
		sqlmock.NewRows([]string{"id", "email", "hashed_password", "role", "created_at", "picture_bkey"}).
			AddRow(uint64(2), "member@x.com", "h", "member", time.Now().UTC(), "gone-key"))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMe(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.DELETE("/users/me", env.h.DeleteMe, asUser(2, model.RoleMember))

	env.mock.ExpectExec("DELETE FROM users WHERE id=?").
		WithArgs(uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodDelete, "/users/me", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, env.sink.events, "2:user-deletion")
}

func TestDeleteMeAlreadyGone(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.DELETE("/users/me", env.h.DeleteMe, asUser(2, model.RoleMember))

	env.mock.ExpectExec("DELETE FROM users WHERE id=?").
		WithArgs(uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest(http.MethodDelete, "/users/me", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, env.sink.events)
}

func TestUpdatePassword(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.PATCH("/users/me/password", env.h.UpdatePassword, asUser(2, model.RoleMember))

	var storedHash string
	env.mock.ExpectExec("UPDATE users SET hashed_password=? WHERE id=?").
		WithArgs(hashArg{t: t, plain: "newsecret", got: &storedHash}, uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPatch, "/users/me/password",
		strings.NewReader(url.Values{"password": {"newsecret"}}.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.True(t, auth.VerifyPassword(storedHash, "newsecret"))
	assert.Contains(t, env.sink.events, "2:user-password-update")
}

func TestUpdatePasswordTooShort(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.PATCH("/users/me/password", env.h.UpdatePassword, asUser(2, model.RoleMember))

	req := httptest.NewRequest(http.MethodPatch, "/users/me/password",
		strings.NewReader(url.Values{"password": {"abc"}}.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// hashArg matches any bcrypt hash of the expected plaintext and records it.
type hashArg struct {
	t     *testing.T
	plain string
	got   *string
}

func (a hashArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	if !auth.VerifyPassword(s, a.plain) {
		return false
	}
	*a.got = s
	return true
}

// captureArg accepts any string argument and records it.
type captureArg struct {
	got *string
}

func (a captureArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	*a.got = s
	return true
}

func pictureRequest(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="avatar"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPatch, "/users/me/picture", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUpdatePicture(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.PATCH("/users/me/picture", env.h.UpdatePicture, asUser(2, model.RoleMember))

	data := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

	// The key embeds the upload timestamp; match it loosely and compare the
	// uploaded and persisted keys afterwards.
	var persisted string
	env.mock.ExpectExec("UPDATE users SET picture_bkey=? WHERE id=?").
		WithArgs(captureArg{got: &persisted}, uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, pictureRequest(t, "image/png", data))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, env.store.keys, 1)
	assert.Equal(t, persisted, env.store.keys[0])
	assert.True(t, strings.HasSuffix(persisted, ".png"), persisted)
	assert.Contains(t, env.sink.events, "2:user-picture-update")
}

func TestUpdatePictureTooLarge(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.PATCH("/users/me/picture", env.h.UpdatePicture, asUser(2, model.RoleMember))

	oversized := bytes.Repeat([]byte{0xab}, maxPictureBytes+1)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, pictureRequest(t, "image/jpeg", oversized))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, env.store.keys)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestUpdatePictureExactLimit(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.PATCH("/users/me/picture", env.h.UpdatePicture, asUser(2, model.RoleMember))

	var persisted string
	env.mock.ExpectExec("UPDATE users SET picture_bkey=? WHERE id=?").
		WithArgs(captureArg{got: &persisted}, uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	exact := bytes.Repeat([]byte{0xcd}, maxPictureBytes)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, pictureRequest(t, "image/jpeg", exact))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, env.store.keys, 1)
	assert.Equal(t, persisted, env.store.keys[0])
}

func TestUpdatePictureWrongType(t *testing.T) {
	env := newUserEnv(t)
	e := echo.New()
	e.PATCH("/users/me/picture", env.h.UpdatePicture, asUser(2, model.RoleMember))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, pictureRequest(t, "image/gif", []byte("GIF89a")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid file type")
	assert.Empty(t, env.store.keys)
}

func TestUpdatePictureUploadFailure(t *testing.T) {
	env := newUserEnv(t)
	env.store.uploadErr = errors.New("bucket unreachable")
	e := echo.New()
	e.PATCH("/users/me/picture", env.h.UpdatePicture, asUser(2, model.RoleMember))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, pictureRequest(t, "image/jpeg", []byte{0xff, 0xd8, 0xff}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
