package models

import (
	"regexp"
	"strings"
)

var (
	macPattern      = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,50}$`)
	hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-.]{0,253})$`)
)

const minPasswordLength = 3

// ValidMACAddress reports whether s looks like a colon- or dash-separated MAC.
func ValidMACAddress(s string) bool {
	return macPattern.MatchString(strings.TrimSpace(s))
}

func ValidUsername(s string) bool {
	return usernamePattern.MatchString(strings.TrimSpace(s))
}

func ValidPassword(s string) bool {
	return len(s) >= minPasswordLength
}

func ValidHostname(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 255 {
		return false
	}
	return hostnamePattern.MatchString(s)
}
