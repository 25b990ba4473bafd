package llmclient

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
)

// NoSummaryText is returned by Complete when the upstream answer carries no text.
const NoSummaryText = "(No summary returned)"

// maxErrorBody bounds the upstream response body kept in an UpstreamError.
const maxErrorBody = 500

// ErrStreamConsumed is carried by the error event a Stream yields when it is
// ranged over a second time.
var ErrStreamConsumed = errors.New("stream already consumed")

// Client generates summaries from a system instruction and a user prompt.
type Client interface {
	Model() string
	Complete(ctx context.Context, system, prompt string) (string, error)
	// Stream returns a lazy, single-pass sequence. It ends after the first
	// EventDone or EventError, or when the consumer stops ranging.
	Stream(ctx context.Context, system, prompt string) iter.Seq[Event]
	Close() error
}

type EventKind int

const (
	EventDelta EventKind = iota + 1
	EventDone
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item of a generation stream. Text is set for EventDelta,
// Err for EventError.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

func deltaEvent(text string) Event { return Event{Kind: EventDelta, Text: text} }
func doneEvent() Event             { return Event{Kind: EventDone} }
func errorEvent(err error) Event   { return Event{Kind: EventError, Err: err} }

// UpstreamError reports a failed call to the generation service. Status is 0
// for transport failures and deadline expiry.
type UpstreamError struct {
	Status int
	Body   string
	Quota  *Quota
	Err    error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status > 0:
		return fmt.Sprintf("upstream error: status %d: %s", e.Status, e.Body)
	case e.Err != nil:
		return "upstream error: " + e.Err.Error()
	default:
		return "upstream error: " + e.Body
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func newUpstreamError(err error) *UpstreamError {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	return &UpstreamError{Err: err}
}

func truncateBody(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}

// singlePass guards seq so that only the first range over it reaches the
// upstream. Later ranges yield a single error event.
func singlePass(seq iter.Seq[Event]) iter.Seq[Event] {
	var used atomic.Bool
	return func(yield func(Event) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(errorEvent(ErrStreamConsumed))
			return
		}
		seq(yield)
	}
}
