package model

import "strings"

// NormalizeUsername canonicalizes a username for matching and storage.
// Agents report usernames with inconsistent casing and stray whitespace;
// every ingress path must normalize before comparing or persisting.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StrPtr returns a pointer to s, or nil when s is empty
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
