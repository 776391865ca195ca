package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/account-api/internal/model"
)

func TestAuthorize(t *testing.T) {
	member := JWTPayload{CallbackJWT: CallbackJWT{Sub: 1, Exp: 1}, Scope: model.RoleMember}
	admin := JWTPayload{CallbackJWT: CallbackJWT{Sub: 2, Exp: 1}, Scope: model.RoleSuperadmin}

	assert.ErrorIs(t, Authorize(member, model.RoleSuperadmin), ErrForbidden)
	assert.NoError(t, Authorize(member, model.RoleSuperadmin, model.RoleMember))
	assert.NoError(t, Authorize(admin, model.RoleSuperadmin))
	assert.ErrorIs(t, Authorize(admin), ErrForbidden)
}

func TestChallenge(t *testing.T) {
	assert.Equal(t, "Bearer", Challenge())
	assert.Equal(t, `Bearer scope="superadmin"`, Challenge(model.RoleSuperadmin))
	assert.Equal(t, `Bearer scope="superadmin member"`,
		Challenge(model.RoleSuperadmin, model.RoleMember))
}
