// Package prefetch warms the summary cache in the background for tests a
// caller is likely to open next.
package prefetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	summarycache "testsummary/internal/cache/summary"
	summarysvc "testsummary/internal/gateway/service/summary"
	llmclient "testsummary/internal/llmClient"
	"testsummary/internal/synopsis"
	"testsummary/internal/testdoc"
)

// Documents is the lookup surface a batch needs.
type Documents interface {
	GetTests(ctx context.Context, ids []string) ([]testdoc.Test, error)
	GetModules(ctx context.Context, ids []string) (testdoc.ModuleIndex, error)
}

type Config struct {
	QueueSize   int
	Concurrency int
	// Mode is the synopsis mode summaries are warmed for.
	Mode synopsis.Mode
	// RecentWindow suppresses resubmitting an id within this window.
	RecentWindow time.Duration
	RecentSize   int
	// TestTimeout bounds the work for one test.
	TestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:    16,
		Concurrency:  2,
		Mode:         synopsis.Expanded,
		RecentWindow: time.Minute,
		RecentSize:   4096,
		TestTimeout:  90 * time.Second,
	}
}

type Stats struct {
	Enabled   bool   `json:"enabled"`
	Accepted  uint64 `json:"accepted"`
	Dropped   uint64 `json:"dropped"`
	Generated uint64 `json:"generated"`
	Cached    uint64 `json:"cached"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
}

type counters struct {
	accepted  atomic.Uint64
	dropped   atomic.Uint64
	generated atomic.Uint64
	cached    atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
}

// Scheduler runs submitted batches on a single dispatcher goroutine with a
// bounded number of concurrent generations per batch.
type Scheduler struct {
	docs  Documents
	cache *summarycache.Cache
	llm   llmclient.Client
	cfg   Config
	log   *slog.Logger

	queue  chan []string
	recent *expirable.LRU[string, struct{}]
	stats  counters

	mu     sync.Mutex
	cancel context.CancelFunc // set once by Start; guarded by mu
	done   chan struct{}
}

// New builds a Scheduler. A nil llm disables it: Submit accepts nothing and
// Start does not launch the dispatcher.
func New(docs Documents, cache *summarycache.Cache, llm llmclient.Client, cfg Config, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = def.RecentWindow
	}
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = def.RecentSize
	}
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = def.TestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		docs:   docs,
		cache:  cache,
		llm:    llm,
		cfg:    cfg,
		log:    logger.With("component", "prefetch"),
		queue:  make(chan []string, cfg.QueueSize),
		recent: expirable.NewLRU[string, struct{}](cfg.RecentSize, nil, cfg.RecentWindow),
		done:   make(chan struct{}),
	}
}

func (s *Scheduler) Enabled() bool { return s != nil && s.llm != nil }

// Submit queues ids for warming without blocking. It returns false when the
// scheduler is disabled, every id was submitted recently, or the queue is full.
func (s *Scheduler) Submit(ids []string) bool {
	if !s.Enabled() {
		return false
	}
	batch := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || s.recent.Contains(id) {
			continue
		}
		s.recent.Add(id, struct{}{})
		batch = append(batch, id)
	}
	if len(batch) == 0 {
		return false
	}
	select {
	case s.queue <- batch:
		s.stats.accepted.Add(1)
		return true
	default:
		s.forget(batch)
		s.stats.dropped.Add(1)
		s.log.Warn("prefetch queue full, batch dropped", "size", len(batch))
		return false
	}
}

// Start launches the dispatcher. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.Enabled() {
		s.log.Info("prefetch disabled: no generation credential")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.dispatch(ctx)
}

// Stop cancels in-flight work and waits for the dispatcher to exit or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forget lets ids be submitted again before the recent window closes.
func (s *Scheduler) forget(ids []string) {
	for _, id := range ids {
		s.recent.Remove(strings.TrimSpace(id))
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-s.queue:
			s.RunBatch(ctx, batch)
		}
	}
}

// RunBatch warms the cache for ids and waits for it to finish. Failures of
// single tests are logged and counted.
func (s *Scheduler) RunBatch(ctx context.Context, ids []string) {
	if !s.Enabled() || len(ids) == 0 {
		return
	}
	tests, err := s.docs.GetTests(ctx, ids)
	if err != nil {
		s.log.WarnContext(ctx, "prefetch lookup failed", "err", err)
		s.forget(ids)
		return
	}

	seen := make(map[string]struct{})
	var moduleIDs []string
	for _, t := range tests {
		for _, id := range t.ModuleIDs() {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				moduleIDs = append(moduleIDs, id)
			}
		}
	}
	var modules testdoc.ModuleIndex
	if len(moduleIDs) > 0 {
		if modules, err = s.docs.GetModules(ctx, moduleIDs); err != nil {
			s.log.WarnContext(ctx, "prefetch module lookup failed", "err", err)
			s.forget(ids)
			return
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, t := range tests {
		g.Go(func() error {
			s.warmSafe(gctx, t, modules)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) warmSafe(ctx context.Context, t testdoc.Test, modules testdoc.ModuleIndex) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.failed.Add(1)
			s.log.ErrorContext(ctx, "prefetch panic", "test_id", t.ID, "err", fmt.Sprint(r))
		}
	}()
	if err := s.warm(ctx, t, modules); err != nil {
		s.stats.failed.Add(1)
		s.log.WarnContext(ctx, "prefetch failed", "test_id", t.ID, "err", err)
	}
}

func (s *Scheduler) warm(ctx context.Context, t testdoc.Test, modules testdoc.ModuleIndex) error {
	if s.cache.ShouldBypass(t) {
		s.stats.skipped.Add(1)
		return nil
	}
	plan := summarysvc.NewPlan(t, modules, s.cfg.Mode)
	if _, ok := s.cache.Get(ctx, plan.Key); ok {
		s.stats.cached.Add(1)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TestTimeout)
	defer cancel()
	system, user := plan.Prompt()
	text, err := s.llm.Complete(ctx, system, user)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" || text == llmclient.NoSummaryText {
		s.stats.skipped.Add(1)
		return nil
	}
	s.cache.Put(ctx, plan.Key, summarycache.Entry{Text: text, Model: s.llm.Model()})
	s.stats.generated.Add(1)
	s.log.DebugContext(ctx, "prefetched summary", "test_id", t.ID, "content_hash", plan.Fingerprint)
	return nil
}

func (s *Scheduler) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		Enabled:   s.Enabled(),
		Accepted:  s.stats.accepted.Load(),
		Dropped:   s.stats.dropped.Load(),
		Generated: s.stats.generated.Load(),
		Cached:    s.stats.cached.Load(),
		Skipped:   s.stats.skipped.Load(),
		Failed:    s.stats.failed.Load(),
	}
}
