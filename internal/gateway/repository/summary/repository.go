// Package summary holds the remote stores behind the summary cache.
// Both implement the cache Backend contract: a missing or expired key is a
// miss with a nil error, and expired rows are removed lazily on read.
package summary

import (
	"strings"
	"time"
)

const expiresAtMeta = "Expires-At"

func expired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}

func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}
