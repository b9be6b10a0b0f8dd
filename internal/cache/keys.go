package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// RateLimitKey names the counter for one key, endpoint and hour window.
// window is formatted as YYYYMMDDHH.
func RateLimitKey(keyID uuid.UUID, endpoint, window string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", keyID, endpoint, window)
}

// APIKeyLookupKey names a cached credential lookup. digest is the hex SHA-256
// of the raw key; the raw key never reaches the cache.
func APIKeyLookupKey(digest string) string {
	return fmt.Sprintf("apikey:%s", digest)
}
