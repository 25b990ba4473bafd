package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is resolved in order: defaults, local env defaults, TOML file,
// environment variables.
type Config struct {
	Port        string `toml:"port"`
	Env         string `toml:"env"`
	TestsDir    string `toml:"tests_dir"`
	DatabaseURL string `toml:"database_url"`
	// Documents selects the document store: file, postgres or memory.
	Documents string `toml:"documents"`
	// WatchTests reloads the file store when documents change.
	WatchTests bool `toml:"watch_tests"`

	LLM      LLMConfig      `toml:"llm"`
	Cache    CacheConfig    `toml:"cache"`
	S3       S3Config       `toml:"s3"`
	Prefetch PrefetchConfig `toml:"prefetch"`
	Log      LogConfig      `toml:"log"`
}

type LLMConfig struct {
	Provider string   `toml:"provider"`
	APIKey   string   `toml:"api_key"`
	Model    string   `toml:"model"`
	BaseURL  string   `toml:"base_url"`
	Timeout  Duration `toml:"timeout"`
}

type CacheConfig struct {
	// Backend is one of memory, disk, postgres, s3, none.
	Backend         string   `toml:"backend"`
	TTL             Duration `toml:"ttl"`
	Dir             string   `toml:"dir"`
	MaxEntries      int      `toml:"max_entries"`
	MaxBytes        int64    `toml:"max_bytes"`
	HotTTL          Duration `toml:"hot_ttl"`
	FlushOnShutdown bool     `toml:"flush_on_shutdown"`
}

type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	UseSSL    bool   `toml:"use_ssl"`
}

func (c S3Config) CanUse() bool {
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.Bucket) != ""
}

type PrefetchConfig struct {
	Enabled     bool    `toml:"enabled"`
	QueueSize   int     `toml:"queue_size"`
	Concurrency int     `toml:"concurrency"`
	RPS         float64 `toml:"rps"`
	Burst       int     `toml:"burst"`
	Mode        string  `toml:"mode"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration reads TOML strings such as "90s" or "168h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Options struct {
	// File is a TOML config path. Empty falls back to TESTSUMMARY_CONFIG.
	File string
	// SkipDotEnv leaves .env unread.
	SkipDotEnv bool
}

func Default() Config {
	return Config{
		Port:      ":8000",
		Env:       "local",
		TestsDir:  "tests",
		Documents: "file",
		LLM: LLMConfig{
			Provider: "anthropic",
			Timeout:  Duration{60 * time.Second},
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        Duration{7 * 24 * time.Hour},
			Dir:        "tmp/summary-cache",
			MaxEntries: 10000,
			HotTTL:     Duration{10 * time.Minute},
		},
		S3: S3Config{
			Region: "us-east-1",
			Bucket: "testsummary-cache",
			Prefix: "summaries",
			UseSSL: true,
		},
		Prefetch: PrefetchConfig{
			Enabled:     true,
			QueueSize:   16,
			Concurrency: 2,
			RPS:         1,
			Burst:       2,
			Mode:        "expanded",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

func Load(opts Options) (*Config, error) {
	if !opts.SkipDotEnv {
		_ = godotenv.Load()
	}

	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("APP_ENV")); env != "" {
		cfg.Env = env
	}
	if strings.EqualFold(cfg.Env, "local") {
		applyLocal(&cfg)
	}

	path := firstNonEmpty(strings.TrimSpace(opts.File), strings.TrimSpace(os.Getenv("TESTSUMMARY_CONFIG")))
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.Port = normalizePort(cfg.Port)
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.TestsDir, "TESTS_DIR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Documents, "DOCUMENTS_SOURCE")

	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	switch strings.ToLower(cfg.LLM.Provider) {
	case "gemini":
		setString(&cfg.LLM.APIKey, "GEMINI_API_KEY")
		setString(&cfg.LLM.Model, "GEMINI_MODEL")
	default:
		setString(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
		setString(&cfg.LLM.Model, "ANTHROPIC_MODEL")
		setString(&cfg.LLM.BaseURL, "ANTHROPIC_BASE_URL")
	}

	setString(&cfg.Cache.Backend, "SUMMARY_CACHE_BACKEND")
	setString(&cfg.Cache.Dir, "SUMMARY_CACHE_DIR")
	setString(&cfg.S3.Endpoint, "SUMMARY_S3_ENDPOINT")
	setString(&cfg.S3.Region, "SUMMARY_S3_REGION")
	setString(&cfg.S3.AccessKey, "SUMMARY_S3_ACCESS_KEY")
	setString(&cfg.S3.SecretKey, "SUMMARY_S3_SECRET_KEY")
	setString(&cfg.S3.Bucket, "SUMMARY_S3_BUCKET")
	setString(&cfg.S3.Prefix, "SUMMARY_S3_PREFIX")
	setString(&cfg.Prefetch.Mode, "PREFETCH_MODE")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	collect(setDuration(&cfg.LLM.Timeout, "LLM_TIMEOUT"))
	collect(setDuration(&cfg.Cache.TTL, "SUMMARY_CACHE_TTL"))
	collect(setDuration(&cfg.Cache.HotTTL, "SUMMARY_CACHE_HOT_TTL"))
	collect(setInt(&cfg.Cache.MaxEntries, "SUMMARY_CACHE_MAX_ENTRIES"))
	collect(setBool(&cfg.Cache.FlushOnShutdown, "SUMMARY_CACHE_FLUSH_ON_SHUTDOWN"))
	collect(setBool(&cfg.S3.UseSSL, "SUMMARY_S3_USE_SSL"))
	collect(setBool(&cfg.WatchTests, "WATCH_TESTS"))
	collect(setBool(&cfg.Prefetch.Enabled, "PREFETCH_ENABLED"))
	collect(setInt(&cfg.Prefetch.QueueSize, "PREFETCH_QUEUE_SIZE"))
	collect(setInt(&cfg.Prefetch.Concurrency, "PREFETCH_CONCURRENCY"))
	collect(setInt(&cfg.Prefetch.Burst, "PREFETCH_BURST"))
	collect(setFloat(&cfg.Prefetch.RPS, "PREFETCH_RPS"))
	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" || strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func setInt(dst *int, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

// setDuration accepts Go durations ("90s") or plain seconds ("90").
func setDuration(dst *Duration, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		dst.Duration = time.Duration(secs) * time.Second
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	dst.Duration = v
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
