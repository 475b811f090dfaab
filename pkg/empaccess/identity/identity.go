// Package identity turns raw, possibly domain-qualified login names into the
// canonical account keys used for every permission lookup.
package identity

import (
	"errors"
	"strings"
)

// ErrInvalidIdentity is returned when a raw identity has no usable username.
var ErrInvalidIdentity = errors.New("invalid identity")

// DomainSeparator separates the domain from the username in DOMAIN\user identities.
const DomainSeparator = `\`

// Account is a canonical, lower-cased account key.
type Account string

// String returns the account key
func (a Account) String() string {
	return string(a)
}

// ResolveAccount normalizes raw into an Account.
// "CORP\JDoe", "jdoe" and " JDOE " all resolve to "jdoe".
func ResolveAccount(raw string) (Account, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrInvalidIdentity
	}
	if _, user, found := strings.Cut(name, DomainSeparator); found {
		name = strings.TrimSpace(user)
	}
	if name == "" {
		return "", ErrInvalidIdentity
	}
	return Account(strings.ToLower(name)), nil
}
