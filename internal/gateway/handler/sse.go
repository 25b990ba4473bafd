package handler

import (
	"encoding/json"
	"io"
	"net/http"
)

const sseRetryMillis = "300"

// sseSink writes relay events as text/event-stream frames. Deltas are sent
// as JSON strings so embedded newlines survive framing.
type sseSink struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	opened bool
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

func (s *sseSink) Open() error {
	if s.opened {
		return nil
	}
	s.opened = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	return s.write("retry: " + sseRetryMillis + "\n\n: keep-alive\n\n")
}

func (s *sseSink) Delta(text string) error {
	return s.write("data: " + jsonString(text) + "\n\n")
}

func (s *sseSink) Done() error {
	return s.write("event: done\ndata: done\n\n")
}

func (s *sseSink) Error(msg string) error {
	if !s.opened {
		if err := s.Open(); err != nil {
			return err
		}
	}
	return s.write("event: error\ndata: " + jsonString(msg) + "\n\n")
}

func (s *sseSink) write(frame string) error {
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	return s.rc.Flush()
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
