// Package identity verifies externally issued identity credentials and
// extracts the verified claims the rest of the system works with.
package identity

import (
	"golang.org/x/text/unicode/norm"
)

// Profile is the verified, non-secret identity of a user. It is safe to
// return to the browser; it never contains the raw upstream credential.
type Profile struct {
	Subject  string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Picture  string   `json:"picture,omitempty"`
	Roles    []string `json:"roles"`
	Provider string   `json:"provider,omitempty"`
}

// Normalize returns a copy of the profile with the display name in NFC form
// and a default role set when the provider supplied none. Identity providers
// disagree on Unicode normalization of names; storing NFC keeps equality
// checks and rendering stable across modules.
func (p Profile) Normalize() Profile {
	p.Name = norm.NFC.String(p.Name)
	if len(p.Roles) == 0 {
		p.Roles = []string{"user"}
	}
	return p
}
