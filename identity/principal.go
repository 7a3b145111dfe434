// Package identity defines the boundary to the external identity service: the
// Principal snapshot, the AuthError taxonomy and the Provider capability set.
package identity

import "net/url"

// Principal is the authenticated identity reported by a Provider.
// A Principal is an immutable snapshot: providers replace it wholesale on every
// session change and never patch a published value in place.
type Principal struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"displayName,omitempty"`
	Email       *string `json:"email,omitempty"`
	AvatarURL   *string `json:"photoURL,omitempty"`
}

// ProfilePatch carries the profile fields to change. Nil fields are left untouched.
type ProfilePatch struct {
	DisplayName *string `json:"displayName,omitempty"`
	AvatarURL   *string `json:"photoURL,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p ProfilePatch) IsEmpty() bool {
	return p.DisplayName == nil && p.AvatarURL == nil
}

// Optional returns a pointer to s, or nil when s is empty
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Value dereferences an optional field, returning "" when absent
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// EmailAddress returns the email, or "" when the provider reported none
func (p *Principal) EmailAddress() string {
	if p == nil {
		return ""
	}
	return Value(p.Email)
}

// Name is the label shown for the principal: display name, then email, then id.
func (p *Principal) Name() string {
	if p == nil {
		return ""
	}
	if name := Value(p.DisplayName); name != "" {
		return name
	}
	if email := Value(p.Email); email != "" {
		return email
	}
	return p.ID
}

// With returns a new snapshot with patch applied. The receiver is not modified.
func (p *Principal) With(patch ProfilePatch) *Principal {
	next := p.Clone()
	if patch.DisplayName != nil {
		next.DisplayName = Optional(*patch.DisplayName)
	}
	if patch.AvatarURL != nil {
		next.AvatarURL = Optional(*patch.AvatarURL)
	}
	return next
}

// Clone returns a deep copy so callers never share optional field storage.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	return &Principal{
		ID:          p.ID,
		DisplayName: Optional(Value(p.DisplayName)),
		Email:       Optional(Value(p.Email)),
		AvatarURL:   Optional(Value(p.AvatarURL)),
	}
}

// Equal compares two snapshots field by field. Two absent principals are equal.
func (p *Principal) Equal(other *Principal) bool {
	if p == nil || other == nil {
		return p == nil && other == nil
	}
	return p.ID == other.ID &&
		Value(p.DisplayName) == Value(other.DisplayName) &&
		Value(p.Email) == Value(other.Email) &&
		Value(p.AvatarURL) == Value(other.AvatarURL)
}

const avatarServiceURL = "https://ui-avatars.com/api/"

// FallbackAvatarURL returns the principal's avatar, or a generated initials
// avatar when none is set. It is presentation only and never stored.
func FallbackAvatarURL(p *Principal) string {
	if p == nil {
		return ""
	}
	if avatar := Value(p.AvatarURL); avatar != "" {
		return avatar
	}
	params := url.Values{}
	params.Set("name", p.Name())
	params.Set("background", "3b82f6")
	params.Set("color", "fff")
	return avatarServiceURL + "?" + params.Encode()
}
