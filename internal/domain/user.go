// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxUserIDLen      = 128
	MaxDisplayNameLen = 36
)

type UserID string

// Validate rejects IDs that cannot be used as a key in a document field path.
func (id UserID) Validate() error {
	if id == "" {
		return ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	if strings.ContainsAny(string(id), ".\"") {
		return ErrUserIDMalformed
	}
	return nil
}

// Profile is what the identity provider knows about a user.
type Profile struct {
	UserID      UserID `json:"userID"`
	DisplayName string `json:"displayName"`
	ImageURL    string `json:"imageURL,omitempty"`
	Anonymous   bool   `json:"anonymous"`
}

// NewProfile is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewProfile(id UserID, displayName, imageURL string, anonymous bool) (Profile, error) {
	if err := id.Validate(); err != nil {
		return Profile{}, err
	}
	p := Profile{UserID: id, ImageURL: imageURL, Anonymous: anonymous}
	if err := p.SetDisplayName(displayName); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (p *Profile) SetDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrDisplayNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	p.DisplayName = name
	return nil
}
