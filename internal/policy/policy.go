package policy

import (
	"crypto/subtle"
	"slices"

	"github.com/cockroachdb/errors"
)

var (
	ErrUnauthenticated = errors.New("invalid or missing api key")
	ErrForbidden       = errors.New("tool not allowed for this key")
)

// User is the caller a served tool call is attributed to.
// Empty allow lists mean everything is allowed.
type User struct {
	ID              string
	AllowedToolsets []string
	AllowedTools    []string
}

// Key binds an API key to a User.
type Key struct {
	Secret string
	User   User
}

// Authorizer authenticates API keys and authorizes tool calls. With no keys
// configured every caller is the anonymous local user.
type Authorizer struct {
	keys []Key
}

func NewAuthorizer(keys ...Key) *Authorizer {
	return &Authorizer{keys: append([]Key{}, keys...)}
}

func (a *Authorizer) Enabled() bool {
	return a != nil && len(a.keys) > 0
}

func (a *Authorizer) Authenticate(apiKey string) (User, error) {
	if !a.Enabled() {
		return User{ID: "local"}, nil
	}
	for _, key := range a.keys {
		if subtle.ConstantTimeCompare([]byte(key.Secret), []byte(apiKey)) == 1 {
			return key.User, nil
		}
	}
	return User{}, ErrUnauthenticated
}

func (a *Authorizer) AuthorizeTool(user User, toolsetID, toolName string) error {
	if len(user.AllowedToolsets) > 0 && !slices.Contains(user.AllowedToolsets, toolsetID) {
		return errors.Wrapf(ErrForbidden, "toolset %q", toolsetID)
	}
	if len(user.AllowedTools) > 0 && !slices.Contains(user.AllowedTools, toolName) {
		return errors.Wrapf(ErrForbidden, "tool %q", toolName)
	}
	return nil
}
