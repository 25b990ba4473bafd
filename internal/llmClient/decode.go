package llmclient

import (
	"encoding/json"
	"strings"
)

type DecodedKind int

const (
	DecodedIgnored DecodedKind = iota
	DecodedDelta
	DecodedDone
	DecodedError
)

// Decoded is the interpretation of a single line of the upstream event
// stream. Text holds the delta text or the error message.
type Decoded struct {
	Kind DecodedKind
	Text string
}

type streamPayload struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeLine interprets one line of a server-sent event stream. Blank lines,
// comments, event: lines and payloads that are not JSON objects are ignored.
func DecodeLine(line string) Decoded {
	line = strings.TrimSpace(line)
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return Decoded{Kind: DecodedIgnored}
	}
	data = strings.TrimSpace(data)
	if data == "" || data == "[DONE]" {
		return Decoded{Kind: DecodedIgnored}
	}

	var p streamPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Decoded{Kind: DecodedIgnored}
	}
	kind := p.Type
	if kind == "" {
		kind = p.Event
	}
	switch kind {
	case "content_block_delta":
		if p.Delta == nil || p.Delta.Type != "text_delta" {
			return Decoded{Kind: DecodedIgnored}
		}
		return Decoded{Kind: DecodedDelta, Text: p.Delta.Text}
	case "message_stop":
		return Decoded{Kind: DecodedDone}
	case "error":
		msg := "stream error"
		if p.Error != nil && p.Error.Message != "" {
			msg = p.Error.Message
		}
		return Decoded{Kind: DecodedError, Text: msg}
	default:
		return Decoded{Kind: DecodedIgnored}
	}
}
