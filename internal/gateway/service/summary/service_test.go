package summary

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	summarycache "testsummary/internal/cache/summary"
	testdocrepo "testsummary/internal/gateway/repository/testdoc"
	llmclient "testsummary/internal/llmClient"
	"testsummary/internal/synopsis"
	"testsummary/internal/testdoc"
)

type recordingSink struct {
	opened int
	deltas []string
	done   int
	errs   []string
	calls  int
	// failAt is the Delta call that fails, 0 for never.
	failAt int
	// cancel is invoked after Delta call cancelAt succeeds.
	cancel   context.CancelFunc
	cancelAt int
}

func (s *recordingSink) Open() error { s.opened++; return nil }

func (s *recordingSink) Delta(text string) error {
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return errors.New("client gone")
	}
	s.deltas = append(s.deltas, text)
	if s.cancel != nil && s.calls == s.cancelAt {
		s.cancel()
	}
	return nil
}

func (s *recordingSink) Done() error { s.done++; return nil }

func (s *recordingSink) Error(msg string) error {
	s.errs = append(s.errs, msg)
	return nil
}

func newRepo(t *testing.T, docs ...map[string]any) *testdocrepo.MemoryStore {
	t.Helper()
	repo := testdocrepo.NewMemoryStore()
	for _, raw := range docs {
		if _, isModule := raw["moduleId"]; isModule {
			m, err := testdoc.DecodeModule(raw)
			require.NoError(t, err)
			require.NoError(t, repo.UpsertModule(context.Background(), m))
			continue
		}
		require.NoError(t, repo.UpsertTest(context.Background(), testdoc.DecodeTest(raw)))
	}
	return repo
}

func t1() map[string]any {
	return map[string]any{
		"id":   "T1",
		"name": "Submit form",
		"steps": []any{
			map[string]any{
				"type": "PRESET_ACTION",
				"command": map[string]any{
					"type":   "CLICK",
					"target": map[string]any{"elementDescriptor": "#submit"},
				},
			},
		},
	}
}

func newCache() *summarycache.Cache {
	return summarycache.New(summarycache.NewMemoryBackend(64, 0), summarycache.Config{}, nil)
}

func TestSummarizeMissThenHit(t *testing.T) {
	repo := newRepo(t, t1())
	llm := llmclient.NewFakeClient()
	svc := New(repo, newCache(), llm, nil)
	ctx := context.Background()

	p, err := svc.Plan(ctx, "T1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"CLICK, target=#submit"}, p.Synopsis)
	assert.Equal(t, synopsis.Expanded, p.Mode)

	first, err := svc.Summarize(ctx, Request{TestID: "T1"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, p.Fingerprint, first.ContentHash)
	assert.Contains(t, first.Text, "Submit form")
	complete, _ := llm.Calls()
	assert.Equal(t, 1, complete)

	second, err := svc.Summarize(ctx, Request{TestID: "T1"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, "fake", second.Model)
	complete, _ = llm.Calls()
	assert.Equal(t, 1, complete, "a cache hit must not call the generator")
}

func TestSummarizeRefreshRegenerates(t *testing.T) {
	repo := newRepo(t, t1())
	llm := llmclient.NewFakeClient()
	svc := New(repo, newCache(), llm, nil)
	ctx := context.Background()

	_, err := svc.Summarize(ctx, Request{TestID: "T1"})
	require.NoError(t, err)
	llm.Reply = "fresh"
	res, err := svc.Summarize(ctx, Request{TestID: "T1", Refresh: true})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "fresh", res.Text)

	res, err = svc.Summarize(ctx, Request{TestID: "T1"})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, "fresh", res.Text)
}

func TestSummarizeBypassAlwaysGenerates(t *testing.T) {
	doc := t1()
	doc["advanced"] = map[string]any{"disableAICaching": true}
	repo := newRepo(t, doc)
	llm := llmclient.NewFakeClient()
	cache := newCache()
	svc := New(repo, cache, llm, nil)

	for i := 0; i < 3; i++ {
		res, err := svc.Summarize(context.Background(), Request{TestID: "T1"})
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	complete, _ := llm.Calls()
	assert.Equal(t, 3, complete)
	assert.Equal(t, uint64(0), cache.Metrics().Writes)
}

func TestSummarizeModuleEditChangesKey(t *testing.T) {
	test := map[string]any{"id": "T2", "steps": []any{map[string]any{"type": "MODULE", "moduleId": "login"}}}
	repo := newRepo(t, test, map[string]any{"moduleId": "login", "name": "Login", "steps": []any{}})
	llm := llmclient.NewFakeClient()
	svc := New(repo, newCache(), llm, nil)
	ctx := context.Background()

	before, err := svc.Summarize(ctx, Request{TestID: "T2"})
	require.NoError(t, err)

	edited, err := testdoc.DecodeModule(map[string]any{"moduleId": "login", "name": "Login v2", "steps": []any{}})
	require.NoError(t, err)
	require.NoError(t, repo.UpsertModule(ctx, edited))

	after, err := svc.Summarize(ctx, Request{TestID: "T2"})
	require.NoError(t, err)
	assert.False(t, after.Cached)
	assert.NotEqual(t, before.ContentHash, after.ContentHash)
	complete, _ := llm.Calls()
	assert.Equal(t, 2, complete)
}

func TestSummarizeErrors(t *testing.T) {
	repo := newRepo(t, t1())
	ctx := context.Background()

	_, err := New(repo, newCache(), llmclient.NewFakeClient(), nil).Summarize(ctx, Request{TestID: "missing"})
	assert.True(t, errors.Is(err, testdoc.ErrNotFound))

	_, err = New(repo, newCache(), nil, nil).Summarize(ctx, Request{TestID: "T1"})
	assert.True(t, errors.Is(err, ErrConfigurationMissing))

	upstream := &llmclient.UpstreamError{Status: 529, Body: "overloaded"}
	_, err = New(repo, newCache(), &llmclient.FakeClient{Err: upstream}, nil).Summarize(ctx, Request{TestID: "T1"})
	var ue *llmclient.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 529, ue.Status)
}

func TestSummarizePlaceholderIsNotCached(t *testing.T) {
	repo := newRepo(t, t1())
	cache := newCache()
	svc := New(repo, cache, &llmclient.FakeClient{Reply: llmclient.NoSummaryText}, nil)

	res, err := svc.Summarize(context.Background(), Request{TestID: "T1"})
	require.NoError(t, err)
	assert.Equal(t, llmclient.NoSummaryText, res.Text)
	assert.Equal(t, uint64(0), cache.Metrics().Writes)
}

func TestSummarizeServedFromCacheWithoutCredential(t *testing.T) {
	repo := newRepo(t, t1())
	cache := newCache()
	ctx := context.Background()
	_, err := New(repo, cache, llmclient.NewFakeClient(), nil).Summarize(ctx, Request{TestID: "T1"})
	require.NoError(t, err)

	res, err := New(repo, cache, nil, nil).Summarize(ctx, Request{TestID: "T1"})
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func scripted(events ...llmclient.Event) *llmclient.FakeClient {
	return &llmclient.FakeClient{Events: events}
}

func delta(s string) llmclient.Event { return llmclient.Event{Kind: llmclient.EventDelta, Text: s} }

func TestStreamForwardsAllDeltasAndStoresOnce(t *testing.T) {
	repo := newRepo(t, t1())
	cache := newCache()
	llm := scripted(delta("Purpose: "), delta("click "), delta("submit."), llmclient.Event{Kind: llmclient.EventDone})
	svc := New(repo, cache, llm, nil)
	ctx := context.Background()

	sink := &recordingSink{}
	state, err := svc.Stream(ctx, Request{TestID: "T1"}, sink)
	require.NoError(t, err)
	assert.Equal(t, Done, state)
	assert.Equal(t, 1, sink.opened)
	assert.Equal(t, []string{"Purpose: ", "click ", "submit."}, sink.deltas)
	assert.Equal(t, 1, sink.done)
	assert.Empty(t, sink.errs)
	assert.Equal(t, uint64(1), cache.Metrics().Writes)

	p, err := svc.Plan(ctx, "T1", synopsis.Expanded)
	require.NoError(t, err)
	e, ok := cache.Get(ctx, p.Key)
	require.True(t, ok)
	assert.Equal(t, "Purpose: click submit.", e.Text)

	// Second request replays the cache without touching the upstream.
	replay := &recordingSink{}
	state, err = svc.Stream(ctx, Request{TestID: "T1"}, replay)
	require.NoError(t, err)
	assert.Equal(t, Done, state)
	assert.Equal(t, []string{"Purpose: click submit."}, replay.deltas)
	assert.Equal(t, 1, replay.done)
	_, streams := llm.Calls()
	assert.Equal(t, 1, streams)
	assert.Equal(t, uint64(1), cache.Metrics().Writes)
}

func TestStreamFailureAtK(t *testing.T) {
	repo := newRepo(t, t1())
	cache := newCache()
	llm := scripted(delta("a"), delta("b"), llmclient.Event{Kind: llmclient.EventError, Err: errors.New("overloaded")}, delta("never"))
	svc := New(repo, cache, llm, nil)

	sink := &recordingSink{}
	state, err := svc.Stream(context.Background(), Request{TestID: "T1"}, sink)
	require.NoError(t, err)
	assert.Equal(t, Failed, state)
	assert.Equal(t, []string{"a", "b"}, sink.deltas)
	assert.Equal(t, []string{"overloaded"}, sink.errs)
	assert.Equal(t, 0, sink.done)
	assert.Equal(t, uint64(0), cache.Metrics().Writes)
}

func TestStreamWithoutTerminalEventFails(t *testing.T) {
	repo := newRepo(t, t1())
	cache := newCache()
	svc := New(repo, cache, nil, nil)
	p, err := svc.Plan(context.Background(), "T1", "")
	require.NoError(t, err)

	r := &Relay{svc: svc, plan: p}
	sink := &recordingSink{}
	state := r.Run(context.Background(), func(yield func(llmclient.Event) bool) {
		yield(delta("partial"))
	}, sink)
	assert.Equal(t, Failed, state)
	assert.Len(t, sink.errs, 1)
	assert.Equal(t, uint64(0), cache.Metrics().Writes)
}

// counting wraps a sequence and records how many events were pulled.
func counting(seq iter.Seq[llmclient.Event], pulled *int) iter.Seq[llmclient.Event] {
	return func(yield func(llmclient.Event) bool) {
		for ev := range seq {
			*pulled++
			if !yield(ev) {
				return
			}
		}
	}
}

func TestStreamSinkFailureCancels(t *testing.T) {
	repo := newRepo(t, t1())
	cache := newCache()
	svc := New(repo, cache, nil, nil)
	p, err := svc.Plan(context.Background(), "T1", "")
	require.NoError(t, err)

	pulled := 0
	events := counting(scripted(delta("a"), delta("b"), delta("c"), delta("d"), llmclient.Event{Kind: llmclient.EventDone}).
		Stream(context.Background(), "", ""), &pulled)
	sink := &recordingSink{failAt: 2}
	r := &Relay{svc: svc, plan: p}
	state := r.Run(context.Background(), events, sink)

	assert.Equal(t, Cancelled, state)
	assert.Equal(t, Cancelled, r.State())
	assert.Equal(t, []string{"a"}, sink.deltas)
	assert.Equal(t, 2, pulled, "relay must stop consuming after the caller is gone")
	assert.Equal(t, 0, sink.done)
	assert.Empty(t, sink.errs)
	assert.Equal(t, uint64(0), cache.Metrics().Writes)
}

func TestStreamContextCancellation(t *testing.T) {
	repo := newRepo(t, t1())
	cache := newCache()
	llm := scripted(delta("a"), delta("b"), delta("c"), llmclient.Event{Kind: llmclient.EventDone})
	svc := New(repo, cache, llm, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &recordingSink{cancel: cancel, cancelAt: 1}
	state, err := svc.Stream(ctx, Request{TestID: "T1"}, sink)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, state)
	assert.Equal(t, []string{"a"}, sink.deltas)
	assert.Equal(t, uint64(0), cache.Metrics().Writes)
}

func TestStreamPreflightErrors(t *testing.T) {
	repo := newRepo(t, t1())
	sink := &recordingSink{}

	_, err := New(repo, newCache(), nil, nil).Stream(context.Background(), Request{TestID: "T1"}, sink)
	assert.True(t, errors.Is(err, ErrConfigurationMissing))
	_, err = New(repo, newCache(), llmclient.NewFakeClient(), nil).Stream(context.Background(), Request{TestID: "nope"}, sink)
	assert.True(t, errors.Is(err, testdoc.ErrNotFound))
	assert.Zero(t, sink.opened)
	assert.Empty(t, sink.deltas)
	assert.Empty(t, sink.errs)
}

func TestStreamBypassDoesNotStore(t *testing.T) {
	doc := t1()
	doc["advanced"] = map[string]any{"disableAICaching": true}
	repo := newRepo(t, doc)
	cache := newCache()
	llm := llmclient.NewFakeClient()
	svc := New(repo, cache, llm, nil)

	for i := 0; i < 2; i++ {
		sink := &recordingSink{}
		state, err := svc.Stream(context.Background(), Request{TestID: "T1"}, sink)
		require.NoError(t, err)
		assert.Equal(t, Done, state)
		assert.True(t, strings.HasPrefix(strings.Join(sink.deltas, ""), "Purpose:"))
	}
	_, streams := llm.Calls()
	assert.Equal(t, 2, streams)
	assert.Equal(t, uint64(0), cache.Metrics().Writes)
}
