package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	summaryWSWriteWait = 10 * time.Second
	summaryWSPongWait  = 60 * time.Second
	summaryWSPingEvery = (summaryWSPongWait * 9) / 10
)

var summaryWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type summaryWSFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// wsSink hands frames to the connection's writer goroutine. Sends block
// until the writer takes the frame, so deltas are never dropped or reordered.
type wsSink struct {
	ctx    context.Context
	frames chan summaryWSFrame
}

func (s *wsSink) send(f summaryWSFrame) error {
	select {
	case s.frames <- f:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *wsSink) Open() error { return s.ctx.Err() }

func (s *wsSink) Delta(text string) error {
	return s.send(summaryWSFrame{Type: "delta", Text: text})
}

func (s *wsSink) Done() error { return s.send(summaryWSFrame{Type: "done"}) }

func (s *wsSink) Error(msg string) error {
	return s.send(summaryWSFrame{Type: "error", Code: "upstream_unavailable", Message: msg})
}

// HandleSummaryWS relays the summary over a websocket as JSON frames and
// closes the connection after the terminal frame.
func (a *API) HandleSummaryWS(w http.ResponseWriter, r *http.Request) {
	req, err := summaryRequest(r, pathID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	conn, err := summaryWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(summaryWSPongWait)); err != nil {
		a.log.WarnContext(ctx, "summary ws set read deadline failed", "err", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(summaryWSPongWait))
	})

	// The reader only watches for the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	frames := make(chan summaryWSFrame)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		ticker := time.NewTicker(summaryWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out, ok := <-frames:
				if err := conn.SetWriteDeadline(time.Now().Add(summaryWSWriteWait)); err != nil {
					return
				}
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(summaryWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	sink := &wsSink{ctx: ctx, frames: frames}
	if _, err := a.summary.Stream(ctx, req, sink); err != nil {
		status, code := statusFor(err)
		if status >= 500 {
			a.log.WarnContext(ctx, "summary ws failed", "status", status, "err", err)
		}
		_ = sink.send(summaryWSFrame{Type: "error", Code: code, Message: err.Error()})
	}
	close(frames)
	<-writerDone
}
