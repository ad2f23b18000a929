package model

import "strings"

// UserContactInfo is the contact captured at submit time and reused across pages.
// JSON keys match the cookie written by the marketing site.
type UserContactInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Complete reports whether all three contact fields are present.
func (c UserContactInfo) Complete() bool {
	return c.FirstName != "" && c.LastName != "" && c.Email != ""
}

// EmailDomain returns the lowercased part of the email after '@', or "".
func (c UserContactInfo) EmailDomain() string {
	return EmailDomain(c.Email)
}

// EmailDomain returns the lowercased domain of an email address, or "" if
// the address has no '@'.
func EmailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[i+1:]))
}
