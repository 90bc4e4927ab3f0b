package utils

import "regexp"

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// IsValidSessionID reports whether a caller-supplied session identifier is
// acceptable as a job key.
func IsValidSessionID(sessionID string) bool {
	return sessionIDPattern.MatchString(sessionID)
}
