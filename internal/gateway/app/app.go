package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	summarycache "testsummary/internal/cache/summary"
	"testsummary/internal/gateway/config"
	"testsummary/internal/gateway/handler"
	testdocrepo "testsummary/internal/gateway/repository/testdoc"
	"testsummary/internal/gateway/server"
	"testsummary/internal/gateway/service/prefetch"
	summarysvc "testsummary/internal/gateway/service/summary"
	"testsummary/internal/synopsis"
)

type App struct {
	cfg *config.Config
	log *slog.Logger

	pool     *dbPool
	docs     documents
	cache    *summarycache.Cache
	gens     generators
	summary  *summarysvc.Service
	prefetch *prefetch.Scheduler
	server   *server.Server

	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// NewLogger builds the process logger from cfg. Unknown levels fall back to info.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg.Log, nil)
	}
	a := &App{cfg: cfg, log: logger, pool: &dbPool{dsn: cfg.DatabaseURL}}

	var err error
	if a.docs, err = initDocuments(cfg, a.pool, logger); err != nil {
		_ = a.pool.close()
		return nil, err
	}
	if a.cache, err = initCache(cfg, a.pool, logger); err != nil {
		_ = a.pool.close()
		return nil, err
	}
	if a.gens, err = initGenerators(ctx, cfg, logger); err != nil {
		_ = a.pool.close()
		return nil, err
	}

	mode, err := synopsis.ParseMode(cfg.Prefetch.Mode)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("prefetch: %w", err)
	}
	a.summary = summarysvc.New(a.docs.store, a.cache, a.gens.interactive, logger)
	a.prefetch = prefetch.New(a.docs.store, a.cache, a.gens.background, prefetch.Config{
		QueueSize:   cfg.Prefetch.QueueSize,
		Concurrency: cfg.Prefetch.Concurrency,
		Mode:        mode,
	}, logger)

	api := handler.NewAPI(handler.Deps{
		Docs:     a.docs.store,
		Summary:  a.summary,
		Cache:    a.cache,
		Prefetch: a.prefetch,
		TestsDir: a.testsDir(),
		Logger:   logger,
	})
	a.server = server.New(cfg.Port, server.NewRouter(api, logger), logger)
	return a, nil
}

func (a *App) testsDir() string {
	if a.docs.file == nil {
		return ""
	}
	return a.cfg.TestsDir
}

func (a *App) Summary() *summarysvc.Service { return a.summary }
func (a *App) Documents() testdocrepo.Store  { return a.docs.store }

// Start runs background work and serves HTTP until Shutdown.
func (a *App) Start(ctx context.Context) error {
	a.prefetch.Start(ctx)
	if a.docs.file != nil && a.cfg.WatchTests {
		wctx, cancel := context.WithCancel(ctx)
		a.stopWatch = cancel
		a.watchDone = make(chan struct{})
		go func() {
			defer close(a.watchDone)
			if err := a.docs.file.Watch(wctx); err != nil {
				a.log.Warn("tests watcher stopped", "err", err)
			}
		}()
	}
	return a.server.Start()
}

// Shutdown stops the server, background work and stores, in that order.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := a.prefetch.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("prefetch: %w", err))
	}
	if a.stopWatch != nil {
		a.stopWatch()
		<-a.watchDone
	}
	if a.cfg.Cache.FlushOnShutdown {
		if err := a.cache.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cache flush: %w", err))
		}
	}
	a.Close()
	return errors.Join(errs...)
}

// Close releases clients and database handles without touching the server.
func (a *App) Close() {
	a.gens.close()
	if err := a.pool.close(); err != nil {
		a.log.Warn("close database", "err", err)
	}
}
