package model

import "strings"

// DefaultLanguage is used when a profile carries no language preference.
const DefaultLanguage = "en"

// UserProfile is the read-only view of a user handed to the reply pipeline.
// UserID is nil for anonymous visitors.
type UserProfile struct {
	UserID            *uint  `json:"userId,omitempty"`
	PrimaryCrop       string `json:"primaryCrop,omitempty"`
	Region            string `json:"region,omitempty"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
}

// AnonymousProfile returns the profile used for unauthenticated requests.
func AnonymousProfile() UserProfile {
	return UserProfile{PreferredLanguage: DefaultLanguage}
}

// Language returns the preferred language, falling back to DefaultLanguage.
func (p UserProfile) Language() string {
	if lang := strings.TrimSpace(p.PreferredLanguage); lang != "" {
		return lang
	}
	return DefaultLanguage
}

// Authenticated reports whether the profile belongs to a signed-in user.
func (p UserProfile) Authenticated() bool {
	return p.UserID != nil
}
