package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	summarycache "testsummary/internal/cache/summary"
	"testsummary/internal/gateway/config"
	summaryrepo "testsummary/internal/gateway/repository/summary"
	testdocrepo "testsummary/internal/gateway/repository/testdoc"
	llmclient "testsummary/internal/llmClient"
)

// dbPool opens one postgres handle shared by every store that needs it.
type dbPool struct {
	dsn  string
	once sync.Once
	db   *sqlx.DB
	err  error
}

func (p *dbPool) get() (*sqlx.DB, error) {
	p.once.Do(func() {
		if strings.TrimSpace(p.dsn) == "" {
			p.err = fmt.Errorf("DATABASE_URL is not set")
			return
		}
		p.db, p.err = sqlx.Open("pgx", p.dsn)
	})
	return p.db, p.err
}

func (p *dbPool) close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

type documents struct {
	store testdocrepo.Store
	// file is set when documents come from the tests directory.
	file *testdocrepo.FileStore
}

func initDocuments(cfg *config.Config, pool *dbPool, logger *slog.Logger) (documents, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Documents)) {
	case "postgres":
		db, err := pool.get()
		if err != nil {
			return documents{}, fmt.Errorf("document store: %w", err)
		}
		logger.Info("document store", "backend", "postgres")
		return documents{store: testdocrepo.NewPostgresStore(db)}, nil
	case "memory":
		logger.Info("document store", "backend", "memory")
		return documents{store: testdocrepo.NewMemoryStore()}, nil
	case "file", "":
		fs := testdocrepo.NewFileStore(cfg.TestsDir, logger)
		if err := fs.EnsureLoaded(); err != nil {
			// The directory may appear later; /health reports it meanwhile.
			logger.Warn("document store: initial load failed", "dir", cfg.TestsDir, "err", err)
		}
		logger.Info("document store", "backend", "file", "dir", cfg.TestsDir)
		return documents{store: fs, file: fs}, nil
	default:
		return documents{}, fmt.Errorf("unknown document store %q", cfg.Documents)
	}
}

func initCache(cfg *config.Config, pool *dbPool, logger *slog.Logger) (*summarycache.Cache, error) {
	backendName := strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	ccfg := summarycache.Config{TTL: cfg.Cache.TTL.Duration, Backend: backendName}
	tier := summarycache.DefaultTieredConfig()
	if cfg.Cache.HotTTL.Duration > 0 {
		tier.HotTTL = cfg.Cache.HotTTL.Duration
	}

	var backend summarycache.Backend
	switch backendName {
	case "none", "off":
		logger.Info("summary cache disabled")
		return nil, nil
	case "memory", "":
		ccfg.Backend = "memory"
		backend = summarycache.NewMemoryBackend(cfg.Cache.MaxEntries, int(cfg.Cache.MaxBytes))
	case "disk":
		store, err := summarycache.NewDiskBackend(cfg.Cache.Dir, cfg.Cache.MaxEntries, cfg.Cache.MaxBytes)
		if err != nil {
			return nil, fmt.Errorf("summary cache: %w", err)
		}
		backend = store
	case "postgres":
		db, err := pool.get()
		if err != nil {
			return nil, fmt.Errorf("summary cache: %w", err)
		}
		backend = summarycache.NewTiered(summaryrepo.NewPostgresStore(db), tier)
	case "s3":
		if !cfg.S3.CanUse() {
			return nil, fmt.Errorf("summary cache: s3 config incomplete")
		}
		store, err := summaryrepo.NewS3Store(summaryrepo.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("summary cache: %w", err)
		}
		backend = summarycache.NewTiered(store, tier)
	default:
		return nil, fmt.Errorf("unknown summary cache backend %q", cfg.Cache.Backend)
	}
	logger.Info("summary cache", "backend", ccfg.Backend, "ttl", ccfg.TTL)
	return summarycache.New(backend, ccfg, logger), nil
}

type generators struct {
	// interactive serves on-demand requests, background is rate limited for prefetch.
	interactive llmclient.Client
	background  llmclient.Client
}

func (g generators) close() {
	if g.background != nil {
		_ = g.background.Close()
	}
	if g.interactive != nil {
		_ = g.interactive.Close()
	}
}

// initGenerators returns empty generators when no credential is configured.
func initGenerators(ctx context.Context, cfg *config.Config, logger *slog.Logger) (generators, error) {
	provider, err := llmclient.ParseProvider(cfg.LLM.Provider)
	if err != nil {
		return generators{}, err
	}
	base, err := llmclient.New(ctx, llmclient.Options{
		Provider: provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout.Duration,
	})
	if errors.Is(err, llmclient.ErrNoCredential) {
		logger.Warn("summary generation disabled: no API key", "provider", provider)
		return generators{}, nil
	}
	if err != nil {
		return generators{}, err
	}
	logger.Info("summary generator", "provider", provider, "model", base.Model())

	gens := generators{interactive: llmclient.Wrap(base, llmclient.WithLogging(logger))}
	if cfg.Prefetch.Enabled {
		gens.background = llmclient.Wrap(base,
			llmclient.WithLogging(logger.With("path", "prefetch")),
			llmclient.RateLimit(cfg.Prefetch.RPS, cfg.Prefetch.Burst),
		)
	}
	return gens, nil
}

// OpenDocumentStore opens the configured document store for offline tools.
// The returned close func releases the database handle, if any.
func OpenDocumentStore(cfg *config.Config, logger *slog.Logger) (testdocrepo.Store, func() error, error) {
	pool := &dbPool{dsn: cfg.DatabaseURL}
	docs, err := initDocuments(cfg, pool, logger)
	if err != nil {
		_ = pool.close()
		return nil, nil, err
	}
	return docs.store, pool.close, nil
}
