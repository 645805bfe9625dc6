package sensors

import (
	"errors"
	"strings"
)

// ChannelPreference selects which contact channels a recipient accepts.
type ChannelPreference string

const (
	PreferenceEmail ChannelPreference = "EMAIL"
	PreferenceSMS   ChannelPreference = "SMS"
	PreferenceBoth  ChannelPreference = "BOTH"
)

// Valid returns true when the preference is supported.
func (p ChannelPreference) Valid() bool {
	switch p {
	case PreferenceEmail, PreferenceSMS, PreferenceBoth:
		return true
	default:
		return false
	}
}

// Recipient is a tenant-scoped notification contact.
type Recipient struct {
	Name       string            `json:"name"`
	Email      string            `json:"email,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	Preference ChannelPreference `json:"preference"`
	Active     bool              `json:"active"`
	Tier       int               `json:"tier"`
}

// Validate checks recipient invariants.
func (r Recipient) Validate() error {
	if r.Name == "" {
		return errors.New("recipient: empty name")
	}
	if r.Email == "" && r.Phone == "" {
		return errors.New("recipient: email or phone required")
	}
	if !r.Preference.Valid() {
		return errors.New("recipient: invalid preference")
	}
	if r.Tier < 0 {
		return errors.New("recipient: negative tier")
	}
	return nil
}

// WantsEmail returns true when the recipient accepts email delivery.
func (r Recipient) WantsEmail() bool {
	return r.Email != "" && (r.Preference == PreferenceEmail || r.Preference == PreferenceBoth)
}

// WantsSMS returns true when the recipient accepts SMS delivery.
func (r Recipient) WantsSMS() bool {
	return r.Phone != "" && (r.Preference == PreferenceSMS || r.Preference == PreferenceBoth)
}

// NormalizeEmail lowercases and trims an email address for dedup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips separators from a phone number for dedup.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		switch r {
		case ' ', '-', '(', ')', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DedupRecipients removes duplicate recipients within one configuration
// update, matching first on normalized email and falling back to phone.
// The first occurrence wins.
func DedupRecipients(list []Recipient) []Recipient {
	if len(list) == 0 {
		return list
	}
	seenEmail := make(map[string]struct{}, len(list))
	seenPhone := make(map[string]struct{}, len(list))
	out := make([]Recipient, 0, len(list))
	for _, recipient := range list {
		email := NormalizeEmail(recipient.Email)
		phone := NormalizePhone(recipient.Phone)
		if email != "" {
			if _, ok := seenEmail[email]; ok {
				continue
			}
			seenEmail[email] = struct{}{}
			if phone != "" {
				seenPhone[phone] = struct{}{}
			}
			out = append(out, recipient)
			continue
		}
		if phone != "" {
			if _, ok := seenPhone[phone]; ok {
				continue
			}
			seenPhone[phone] = struct{}{}
		}
		out = append(out, recipient)
	}
	return out
}
