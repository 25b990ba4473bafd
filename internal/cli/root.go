// Package cli implements the testsummary command line.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"testsummary/internal/gateway/app"
	"testsummary/internal/gateway/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
}

func (o *rootOptions) load(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.Options{File: o.configFile})
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	return cfg, app.NewLogger(cfg.Log, stderr), nil
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "testsummary",
		Short: "Summarize end-to-end test definitions with a cached LLM",
		Long: `testsummary serves test definitions and their natural-language summaries.

Summaries are cached by a fingerprint of the test and every module it uses,
so they are regenerated only when that content changes.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "TOML config file (default $TESTSUMMARY_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newServeCommand(opts), newIngestCommand(opts), newSummarizeCommand(opts))
	return root
}
