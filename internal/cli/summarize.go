package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"testsummary/internal/gateway/app"
	summarysvc "testsummary/internal/gateway/service/summary"
	"testsummary/internal/synopsis"
)

// writerSink prints streamed deltas as they arrive.
type writerSink struct {
	out io.Writer
	err error
}

func (s *writerSink) Open() error { return nil }

func (s *writerSink) Delta(text string) error {
	_, err := io.WriteString(s.out, text)
	return err
}

func (s *writerSink) Done() error {
	_, err := io.WriteString(s.out, "\n")
	return err
}

func (s *writerSink) Error(msg string) error {
	s.err = errors.New(msg)
	return nil
}

func newSummarizeCommand(opts *rootOptions) *cobra.Command {
	var (
		mode    string
		refresh bool
		stream  bool
	)
	cmd := &cobra.Command{
		Use:   "summarize <test-id>",
		Short: "Print the summary of one test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := synopsis.ParseMode(mode)
			if err != nil {
				return err
			}
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			req := summarysvc.Request{TestID: args[0], Mode: m, Refresh: refresh}
			out := cmd.OutOrStdout()
			if !stream {
				res, err := a.Summary().Summarize(cmd.Context(), req)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, res.Text)
				return err
			}

			sink := &writerSink{out: out}
			state, err := a.Summary().Stream(cmd.Context(), req, sink)
			if err != nil {
				return err
			}
			switch {
			case state == summarysvc.Done:
				return nil
			case sink.err != nil:
				return fmt.Errorf("stream %s: %w", state, sink.err)
			default:
				return fmt.Errorf("stream %s", state)
			}
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "expanded", "synopsis mode: expanded or collapsed")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore a cached summary")
	cmd.Flags().BoolVar(&stream, "stream", false, "print deltas as they arrive")
	return cmd
}
