package transport

import "regexp"

// tokenPattern is the base58 alphabet (no 0, O, I, l), at least 23 characters.
var tokenPattern = regexp.MustCompile(`^[1-9a-km-zA-HJ-NP-Z]{23,}$`)

// ValidateToken checks a device token before any connection is attempted.
func ValidateToken(token string) error {
	if !tokenPattern.MatchString(token) {
		return &TokenError{Token: token}
	}
	return nil
}
