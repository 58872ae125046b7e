package cache

import (
	"strings"
)

// KeyPrefix namespaces all payload keys in Redis.
const KeyPrefix = "patent"

// CacheKey identifies one cached payload.
type CacheKey struct {
	// Source is the fetch mode the payload came from ("json", "html")
	Source string

	// Identifier is the patent identifier
	Identifier string
}

// String generates a deterministic cache key string.
// Format: patent:source:identifier
//
// Example:
//
//	patent:json:EP1234567A1
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if source := strings.ToLower(strings.TrimSpace(k.Source)); source != "" {
		parts = append(parts, source)
	}

	parts = append(parts, strings.TrimSpace(k.Identifier))

	return strings.Join(parts, ":")
}

// SourcePattern returns the SCAN pattern matching every key of source, or of
// all sources when source is empty.
func SourcePattern(source string) string {
	if source = strings.ToLower(strings.TrimSpace(source)); source == "" {
		return KeyPrefix + ":*"
	}
	return KeyPrefix + ":" + source + ":*"
}
