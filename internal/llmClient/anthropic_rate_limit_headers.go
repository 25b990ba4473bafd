package llmclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// parseAnthropicQuota reads the Messages API rate-limit headers. Resets are
// RFC 3339 timestamps; retry-after is in seconds.
func parseAnthropicQuota(h http.Header, now time.Time) (Quota, bool) {
	q := Quota{ObservedAt: now}
	found := false

	if v, ok := headerInt(h, "retry-after"); ok {
		q.RetryAfter = time.Duration(v) * time.Second
		found = true
	}
	for _, dim := range []struct {
		name string
		b    *Budget
	}{
		{"requests", &q.Requests},
		{"tokens", &q.Tokens},
	} {
		prefix := "anthropic-ratelimit-" + dim.name + "-"
		if v, ok := headerInt(h, prefix+"limit"); ok {
			dim.b.Limit = v
			found = true
		}
		if v, ok := headerInt(h, prefix+"remaining"); ok {
			dim.b.Remaining = v
			dim.b.Known = true
			found = true
		}
		if raw := strings.TrimSpace(h.Get(prefix + "reset")); raw != "" {
			if at, err := time.Parse(time.RFC3339, raw); err == nil {
				dim.b.Reset = at
				found = true
			}
		}
	}
	return q, found
}

func headerInt(h http.Header, key string) (int, bool) {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
