// Package summary produces test summaries: it resolves a test and its
// modules, checks the summary cache under the content fingerprint, and on a
// miss generates the text either in one call or as a relayed stream.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	summarycache "testsummary/internal/cache/summary"
	"testsummary/internal/fingerprint"
	testdocrepo "testsummary/internal/gateway/repository/testdoc"
	llmclient "testsummary/internal/llmClient"
	"testsummary/internal/prompt"
	"testsummary/internal/synopsis"
	"testsummary/internal/testdoc"
)

// ErrConfigurationMissing is returned when a summary must be generated but no
// generation client is configured.
var ErrConfigurationMissing = errors.New("generation credential not configured")

// Lookup is the part of the document repository the service reads from.
type Lookup interface {
	GetTest(ctx context.Context, id string) (testdoc.Test, error)
	GetModules(ctx context.Context, ids []string) (testdoc.ModuleIndex, error)
}

var _ Lookup = (testdocrepo.Repository)(nil)

type Request struct {
	TestID string
	Mode   synopsis.Mode
	// Refresh skips the cache read. The result is still stored.
	Refresh bool
}

type Result struct {
	Text        string `json:"text"`
	Model       string `json:"model"`
	Cached      bool   `json:"cached"`
	ContentHash string `json:"contentHash"`
}

// Plan is everything derived from a test before any upstream call.
type Plan struct {
	Test        testdoc.Test
	Modules     testdoc.ModuleIndex
	Mode        synopsis.Mode
	Synopsis    []string
	Fingerprint string
	Key         summarycache.Key
}

// NewPlan condenses t and computes its fingerprint. It performs no I/O.
func NewPlan(t testdoc.Test, modules testdoc.ModuleIndex, mode synopsis.Mode) Plan {
	if mode == "" {
		mode = synopsis.Expanded
	}
	fp := fingerprint.Compute(t, modules)
	return Plan{
		Test:        t,
		Modules:     modules,
		Mode:        mode,
		Synopsis:    synopsis.Condense(t, modules, mode),
		Fingerprint: fp,
		Key:         summarycache.Key{TestID: t.ID, Fingerprint: fp, Mode: mode},
	}
}

// Prompt returns the system instruction and user prompt for the plan.
func (p Plan) Prompt() (system, user string) {
	return prompt.Build(p.Test, p.Synopsis)
}

type Service struct {
	docs  Lookup
	cache *summarycache.Cache
	llm   llmclient.Client
	log   *slog.Logger
}

// New builds a Service. llm may be nil, in which case every cache miss fails
// with ErrConfigurationMissing. cache may be nil, which disables caching.
func New(docs Lookup, cache *summarycache.Cache, llm llmclient.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, cache: cache, llm: llm, log: logger.With("component", "summary_service")}
}

// Generator reports the model name, or "" when generation is not configured.
func (s *Service) Generator() string {
	if s.llm == nil {
		return ""
	}
	return s.llm.Model()
}

// Plan loads the test and the modules it references and derives its plan.
func (s *Service) Plan(ctx context.Context, testID string, mode synopsis.Mode) (Plan, error) {
	testID = strings.TrimSpace(testID)
	t, err := s.docs.GetTest(ctx, testID)
	if err != nil {
		return Plan{}, err
	}
	var modules testdoc.ModuleIndex
	if ids := t.ModuleIDs(); len(ids) > 0 {
		modules, err = s.docs.GetModules(ctx, ids)
		if err != nil {
			return Plan{}, fmt.Errorf("load modules for %s: %w", testID, err)
		}
	}
	return NewPlan(t, modules, mode), nil
}

// cached returns a fresh entry for p unless the request or test rules it out.
func (s *Service) cached(ctx context.Context, p Plan, refresh bool) (summarycache.Entry, bool) {
	if refresh || s.cache.ShouldBypass(p.Test) {
		return summarycache.Entry{}, false
	}
	return s.cache.Get(ctx, p.Key)
}

// store writes text for p unless caching is bypassed for the test or the
// text is the empty-answer placeholder.
func (s *Service) store(ctx context.Context, p Plan, text string) bool {
	if s.cache.ShouldBypass(p.Test) {
		return false
	}
	if strings.TrimSpace(text) == "" || text == llmclient.NoSummaryText {
		return false
	}
	s.cache.Put(ctx, p.Key, summarycache.Entry{Text: text, Model: s.llm.Model()})
	return true
}

// Summarize returns the summary for req, generating it with one blocking
// call on a cache miss.
func (s *Service) Summarize(ctx context.Context, req Request) (Result, error) {
	p, err := s.Plan(ctx, req.TestID, req.Mode)
	if err != nil {
		return Result{}, err
	}
	if e, ok := s.cached(ctx, p, req.Refresh); ok {
		return Result{Text: e.Text, Model: e.Model, Cached: true, ContentHash: p.Fingerprint}, nil
	}
	if s.llm == nil {
		return Result{}, ErrConfigurationMissing
	}

	system, user := p.Prompt()
	text, err := s.llm.Complete(ctx, system, user)
	if err != nil {
		s.log.WarnContext(ctx, "summary generation failed", "test_id", p.Test.ID, "content_hash", p.Fingerprint, "err", err)
		return Result{}, err
	}
	s.store(ctx, p, text)
	return Result{Text: text, Model: s.llm.Model(), ContentHash: p.Fingerprint}, nil
}

// Stream relays the summary for req to sink. Errors returned here happen
// before anything is written to sink; upstream failures are reported through
// sink and the returned State instead.
func (s *Service) Stream(ctx context.Context, req Request, sink Sink) (State, error) {
	p, err := s.Plan(ctx, req.TestID, req.Mode)
	if err != nil {
		return Failed, err
	}
	r := &Relay{svc: s, plan: p}
	if e, ok := s.cached(ctx, p, req.Refresh); ok {
		return r.Replay(ctx, e, sink), nil
	}
	if s.llm == nil {
		return Failed, ErrConfigurationMissing
	}
	system, user := p.Prompt()
	return r.Run(ctx, s.llm.Stream(ctx, system, user), sink), nil
}
