package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/account-api/internal/model"
)

// ErrForbidden means the token is valid but its scope is not in the set an
// endpoint requires.  Distinct from the token errors: the caller is
// authenticated, just not entitled.
var ErrForbidden = errors.New("incompatible token scope")

// Authorize allows the payload through when its scope is a member of the
// required set.
func Authorize(p JWTPayload, scopes ...model.Role) error {
	for _, s := range scopes {
		if p.Scope == s {
			return nil
		}
	}
	return ErrForbidden
}

// Challenge builds the WWW-Authenticate value echoing the scopes that were
// required, e.g. `Bearer scope="superadmin member"`.
func Challenge(scopes ...model.Role) string {
	if len(scopes) == 0 {
		return "Bearer"
	}
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return fmt.Sprintf("Bearer scope=%q", strings.Join(parts, " "))
}
