package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"testsummary/internal/gateway/app"
	"testsummary/internal/ingest"
)

func newIngestCommand(opts *rootOptions) *cobra.Command {
	var (
		dir    string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load *.test.yaml and *.module.yaml files into the document store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.TestsDir
			}
			res, err := ingest.Load(dir)
			if err != nil {
				return err
			}
			for _, sk := range res.Skipped {
				logger.Warn("document skipped", "path", sk.Path, "reason", sk.Reason)
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "found %d tests, %d modules, skipped %d\n", len(res.Tests), len(res.Modules), len(res.Skipped))
				return nil
			}
			if cfg.Documents == "file" || cfg.Documents == "" {
				return fmt.Errorf("ingest needs a database document store; set DOCUMENTS_SOURCE=postgres or use --dry-run")
			}

			store, closeStore, err := app.OpenDocumentStore(cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()
			stats, err := ingest.Apply(cmd.Context(), store, res)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ingested %d tests, %d modules into %s, skipped %d\n",
				stats.Tests, stats.Modules, store.Name(), stats.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to scan (default TESTS_DIR)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and report without writing")
	return cmd
}
