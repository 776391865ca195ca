package auth // package auth implements token issuance, verification and scope checks

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens

	"github.com/iliyamo/account-api/internal/model"
)

// Distinguished token failures.  Expired and bad-signature tokens are
// reported identically at the HTTP boundary (401 "Token has expired."),
// while tokens that cannot be parsed at all map to 406 and structurally
// wrong payloads to 422.  The split is deliberate and must be preserved.
var (
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenBadSignature = errors.New("token signature does not verify")
	ErrTokenMalformed    = errors.New("token cannot be parsed")
	ErrInvalidPayload    = errors.New("invalid token payload")
)

// TTL presets used by callers.  The codec itself is ttl-agnostic.
const (
	CodeTTL      = 5 * time.Minute      // one-time magic-link codes
	DefaultTTL   = 60 * time.Minute     // default access token
	UnlimitedTTL = 365 * 24 * time.Hour // "unlimited" session bearer token
)

// CallbackJWT is the narrow payload carried by magic-link codes: subject and
// expiry only.  It has no scope claim, so a code can never pass a
// scope-gated endpoint as a bearer credential.
type CallbackJWT struct {
	Sub uint64 // subject = user id, > 0
	Exp int64  // unix expiry, > 0
}

// JWTPayload is the full session payload: subject, expiry and the role
// scope that endpoints gate on.
type JWTPayload struct {
	CallbackJWT
	Scope model.Role
}

// Codec signs and verifies HS256 tokens with a shared symmetric secret.
// The secret comes from process configuration and is immutable afterwards.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Encode merges the caller's claims with a computed exp (now UTC + ttl) and
// signs the result.
func (c *Codec) Encode(claims map[string]any, ttl time.Duration) (string, error) {
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["exp"] = time.Now().UTC().Add(ttl).Unix()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	return t.SignedString(c.secret)
}

// Decode verifies signature and expiry in one step and returns the raw
// claims.  Failures collapse into the three distinguished errors above.
func (c *Codec) Decode(token string) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		// Reject anything but HMAC before touching the secret.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenBadSignature
		}
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenBadSignature
		default:
			return nil, ErrTokenMalformed
		}
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// SessionClaims builds the claim set for a full session token.
func SessionClaims(u model.User) map[string]any {
	return map[string]any{
		"sub":   strconv.FormatUint(u.ID, 10),
		"scope": string(u.Role),
	}
}

// CodeClaims builds the claim set for a scope-less magic-link code.
func CodeClaims(userID uint64) map[string]any {
	return map[string]any{"sub": strconv.FormatUint(userID, 10)}
}

// ParseSession validates decoded claims against the full session payload
// shape: positive subject, positive expiry and a recognized scope.
func ParseSession(claims jwt.MapClaims) (JWTPayload, error) {
	cb, err := ParseCallback(claims)
	if err != nil {
		return JWTPayload{}, err
	}
	scope, _ := claims["scope"].(string)
	role := model.Role(scope)
	if !role.Valid() {
		return JWTPayload{}, ErrInvalidPayload
	}
	return JWTPayload{CallbackJWT: cb, Scope: role}, nil
}

// ParseCallback validates decoded claims against the narrow callback shape.
// Extra claims (such as scope) are ignored, so a full session token is also
// acceptable where a code is expected, but never the other way around.
func ParseCallback(claims jwt.MapClaims) (CallbackJWT, error) {
	sub, ok := subjectID(claims)
	if !ok || sub == 0 {
		return CallbackJWT{}, ErrInvalidPayload
	}
	exp, ok := claims["exp"].(float64)
	if !ok || exp <= 0 {
		return CallbackJWT{}, ErrInvalidPayload
	}
	return CallbackJWT{Sub: sub, Exp: int64(exp)}, nil
}

// subjectID extracts the sub claim.  Tokens issued here carry the id as a
// decimal string, but numeric claims from older tokens decode as float64.
func subjectID(claims jwt.MapClaims) (uint64, bool) {
	switch v := claims["sub"].(type) {
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	}
	return 0, false
}
