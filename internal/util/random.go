// Package util provides utility functions for the HeyKaelo application.
package util

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; not for cryptographic purposes.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateUserID generates a unique owner identity ID with "u_" prefix.
func GenerateUserID() string {
	return GenerateRandomID("u_", 32)
}

// GenerateCustomerID generates a unique customer ID with "c_" prefix.
func GenerateCustomerID() string {
	return GenerateRandomID("c_", 32)
}

// Slugify converts a business name into a URL-safe slug: lowercased, runs of
// non-alphanumeric characters collapsed to a single '-', with a random 0-999
// suffix appended to reduce collisions.
func Slugify(name string) string {
	return fmt.Sprintf("%s-%d", SlugBase(name), rand.IntN(1000))
}

// SlugBase returns the slug without the random suffix (exposed for tests).
func SlugBase(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	var builder strings.Builder
	builder.Grow(len(lower))
	prevDash := true // suppress a leading dash
	for _, r := range lower {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			builder.WriteRune(r)
			prevDash = false
		} else if !prevDash {
			builder.WriteByte('-')
			prevDash = true
		}
	}
	return strings.TrimSuffix(builder.String(), "-")
}
