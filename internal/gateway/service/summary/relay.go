package summary

import (
	"context"
	"iter"
	"strings"
	"time"

	summarycache "testsummary/internal/cache/summary"
	llmclient "testsummary/internal/llmClient"
)

// Sink receives relayed events. An error from any method means the caller is
// gone and the relay stops.
type Sink interface {
	// Open is called once, after the request is validated and before the
	// first event.
	Open() error
	Delta(text string) error
	Done() error
	Error(msg string) error
}

type State int

const (
	Streaming State = iota
	Done
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Streaming:
		return "streaming"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Relay forwards one generation stream to a Sink and stores the completed
// text under the key computed before the stream started.
type Relay struct {
	svc   *Service
	plan  Plan
	state State
	text  strings.Builder
}

func (r *Relay) State() State { return r.state }

// Replay sends a cached entry as one delta followed by done.
func (r *Relay) Replay(ctx context.Context, e summarycache.Entry, sink Sink) State {
	r.state = Streaming
	if ctx.Err() != nil || sink.Open() != nil || sink.Delta(e.Text) != nil || sink.Done() != nil {
		r.state = Cancelled
	} else {
		r.state = Done
	}
	r.svc.log.InfoContext(ctx, "summary stream finished",
		"test_id", r.plan.Test.ID, "content_hash", r.plan.Fingerprint, "mode", r.plan.Mode,
		"outcome", r.state.String(), "cached", true)
	return r.state
}

// Run ranges over events until a terminal event, a sink failure or ctx
// cancellation. Leaving the range early releases the upstream connection.
func (r *Relay) Run(ctx context.Context, events iter.Seq[llmclient.Event], sink Sink) State {
	start := time.Now()
	r.state = Streaming
	deltas := 0
	var upstreamErr error

	if err := sink.Open(); err != nil {
		r.state = Cancelled
		r.svc.log.InfoContext(ctx, "summary stream finished",
			"test_id", r.plan.Test.ID, "content_hash", r.plan.Fingerprint, "mode", r.plan.Mode, "outcome", r.state.String())
		return r.state
	}

loop:
	for ev := range events {
		if ctx.Err() != nil {
			r.state = Cancelled
			break
		}
		switch ev.Kind {
		case llmclient.EventDelta:
			if ev.Text == "" {
				continue
			}
			if err := sink.Delta(ev.Text); err != nil {
				r.state = Cancelled
				break loop
			}
			r.text.WriteString(ev.Text)
			deltas++
		case llmclient.EventDone:
			r.state = Done
			break loop
		default:
			upstreamErr = ev.Err
			r.state = Failed
			break loop
		}
	}
	if r.state == Streaming {
		// The sequence ended without a terminal event.
		if ctx.Err() != nil {
			r.state = Cancelled
		} else {
			r.state = Failed
		}
	}

	stored := false
	switch r.state {
	case Done:
		stored = r.svc.store(ctx, r.plan, r.text.String())
		if err := sink.Done(); err != nil {
			r.state = Cancelled
		}
	case Failed:
		msg := "upstream stream ended unexpectedly"
		if upstreamErr != nil {
			msg = upstreamErr.Error()
		}
		_ = sink.Error(msg)
	}

	attrs := []any{
		"test_id", r.plan.Test.ID, "content_hash", r.plan.Fingerprint, "mode", r.plan.Mode,
		"outcome", r.state.String(), "deltas", deltas, "stored", stored, "elapsed", time.Since(start),
	}
	if upstreamErr != nil {
		attrs = append(attrs, "err", upstreamErr)
	}
	if r.state == Failed {
		r.svc.log.WarnContext(ctx, "summary stream finished", attrs...)
	} else {
		r.svc.log.InfoContext(ctx, "summary stream finished", attrs...)
	}
	return r.state
}
