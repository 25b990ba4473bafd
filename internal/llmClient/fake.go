package llmclient

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
)

// FakeClient returns scripted output for tests and offline runs.
// With no script it derives a short deterministic summary from the prompt.
type FakeClient struct {
	Name string
	// Reply is returned by Complete and streamed word by word when Events is nil.
	Reply string
	// Events, when set, is replayed verbatim by Stream.
	Events []Event
	// Err makes Complete fail.
	Err error

	completeCalls atomic.Int32
	streamCalls   atomic.Int32
}

func NewFakeClient() *FakeClient { return &FakeClient{Name: "fake"} }

func (f *FakeClient) Model() string {
	if f.Name == "" {
		return "fake"
	}
	return f.Name
}
func (f *FakeClient) Close() error { return nil }

// Calls reports how many Complete and Stream calls reached the client.
func (f *FakeClient) Calls() (complete, stream int) {
	return int(f.completeCalls.Load()), int(f.streamCalls.Load())
}

func (f *FakeClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.completeCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", newUpstreamError(err)
	}
	if f.Err != nil {
		return "", f.Err
	}
	return f.reply(prompt), nil
}

func (f *FakeClient) Stream(ctx context.Context, system, prompt string) iter.Seq[Event] {
	f.streamCalls.Add(1)
	events := f.Events
	if events == nil {
		words := strings.SplitAfter(f.reply(prompt), " ")
		events = make([]Event, 0, len(words)+1)
		for _, w := range words {
			events = append(events, deltaEvent(w))
		}
		events = append(events, doneEvent())
	}
	return singlePass(func(yield func(Event) bool) {
		for _, ev := range events {
			if ctx.Err() != nil {
				yield(errorEvent(newUpstreamError(ctx.Err())))
				return
			}
			if !yield(ev) {
				return
			}
			if ev.Kind != EventDelta {
				return
			}
		}
	})
}

func (f *FakeClient) reply(prompt string) string {
	if f.Reply != "" {
		return f.Reply
	}
	title := "Unnamed test"
	steps := 0
	for _, line := range strings.Split(prompt, "\n") {
		if name, ok := strings.CutPrefix(line, "Test: "); ok {
			title = name
		}
		if strings.HasPrefix(line, "- ") {
			steps++
		}
	}
	return fmt.Sprintf("Purpose: exercises %s.\nMain Flow: %d condensed steps.", title, steps)
}
