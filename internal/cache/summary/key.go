// Package summary caches generated test summaries by content fingerprint.
//
// A Cache wraps a Backend (memory, disk, postgres, s3 or a tiered
// combination) and absorbs backend failures: a failing read is a miss and a
// failing write is dropped, so summarization keeps working without a store.
package summary

import (
	"encoding/json"
	"fmt"
	"time"

	"testsummary/internal/synopsis"
)

// DefaultTTL is how long a summary stays cached unless configured otherwise.
const DefaultTTL = 7 * 24 * time.Hour

// Key identifies one cached summary. Editing the test or any module it
// references changes Fingerprint and therefore the key.
type Key struct {
	TestID      string
	Fingerprint string
	Mode        synopsis.Mode
}

func (k Key) String() string {
	return fmt.Sprintf("summary:%s:%s:%s", k.TestID, k.Fingerprint, k.Mode)
}

// Entry is a stored summary. Cached is set on entries served from the cache.
type Entry struct {
	Text      string    `json:"text"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
	Cached    bool      `json:"-"`
}

func encodeEntry(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(raw []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
