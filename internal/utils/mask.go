package utils

import "strings"

const maskFill = "********"

// MaskSensitive masks secrets such as bearer tokens, keeping only a prefix.
// Values no longer than prefixLen are masked entirely.
func MaskSensitive(s string, prefixLen int) string {
	if s == "" {
		return ""
	}

	prefix := ""
	value := s
	if strings.HasPrefix(s, "Bearer ") {
		prefix = "Bearer "
		value = s[len(prefix):]
	}

	if len(value) <= prefixLen {
		return prefix + "***"
	}

	return prefix + value[:prefixLen] + maskFill
}

// MaskToken masks a JWT for logging. The first eight characters only cover
// the fixed header and never identify the subject.
func MaskToken(token string) string {
	return MaskSensitive(token, 8)
}
