package cache

import (
	"net/http"
	"time"
)

// CacheEntry represents a cached patent payload.
type CacheEntry struct {
	// Data is the raw response body
	Data []byte `json:"data"`

	// ContentType of the original response
	ContentType string `json:"content_type"`

	// ETag reported by the source, if any
	ETag string `json:"etag,omitempty"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this payload
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry builds an entry for body that expires after ttl.
// Header may be nil.
func NewEntry(body []byte, header http.Header, ttl time.Duration) *CacheEntry {
	now := time.Now()
	entry := &CacheEntry{
		Data:     body,
		CachedAt: now,
		Expires:  now.Add(ttl),
	}
	if header != nil {
		entry.ContentType = header.Get("Content-Type")
		entry.ETag = header.Get("ETag")
	}
	return entry
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
