package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/app"
	"github.com/kailas-cloud/docqa/internal/config"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/answer"
	logpkg "github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/version"
)

type rootOptions struct {
	env      string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "docqa-cli",
		Short:         "Ingest PDF documents and ask questions about them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "Config environment (config/<env>.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newIngestCmd(opts),
		newQueryCmd(opts),
		newAskCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// withApp loads configuration, builds the pipeline, runs fn and tears everything down.
func withApp(ctx context.Context, opts *rootOptions, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(opts.env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.New(opts.env, logpkg.Options{
		Level:       opts.logLevel,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, opts.env, &cfg, logger)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil {
			logger.Warn("Close failed", zap.Error(cerr))
		}
	}()

	return fn(logpkg.ContextWithLogger(ctx, logger), a)
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <url>",
		Short: "Download, chunk, embed and index a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				res := a.Processor.Ingest(ctx, args[0])
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return res.Err
				}
				return nil
			})
		},
	}
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		index string
		topK  int
	)
	cmd := &cobra.Command{
		Use:   "query [url] <question>",
		Short: "Print the chunks closest to a question",
		Long:  "Searches the index of an already ingested document. Pass the document URL or --index.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, question, err := resolveQueryArgs(index, args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				if name == "" {
					name = a.Processor.IndexName(args[0])
				}
				matches, err := a.Processor.Query(ctx, name, question, topK)
				if err != nil {
					return fmt.Errorf("query %s: %w", name, err)
				}
				return printJSON(cmd.OutOrStdout(), matches)
			})
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "Index name (instead of a document URL)")
	cmd.Flags().IntVar(&topK, "top-k", 5, "Number of matches")
	return cmd
}

// resolveQueryArgs returns the explicit index ("" when derived from a URL) and the question.
func resolveQueryArgs(index string, args []string) (string, string, error) {
	switch {
	case index != "" && len(args) == 1:
		return index, args[0], nil
	case index == "" && len(args) == 2:
		return "", args[1], nil
	case index != "":
		return "", "", errors.New("with --index pass only the question")
	default:
		return "", "", errors.New("pass a document URL and a question, or --index and a question")
	}
}

type askOutput struct {
	Index   string   `json:"index"`
	Chunks  int      `json:"chunks"`
	Answers []string `json:"answers"`
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var questions []string
	cmd := &cobra.Command{
		Use:   "ask <url> -q <question> [-q <question>...]",
		Short: "Ingest a PDF and answer questions about it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(questions) == 0 {
				return errors.New("at least one -q question is required")
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				rep, err := a.QA.Run(ctx, args[0], questions)
				if err != nil {
					return fmt.Errorf("%s: %w", rep.Ingest.Message, err)
				}
				return printJSON(cmd.OutOrStdout(), askOutput{
					Index:   rep.Ingest.IndexName,
					Chunks:  rep.Ingest.ChunksProcessed,
					Answers: rep.Answers(formatFailure),
				})
			})
		},
	}
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "Question to answer (repeatable)")
	return cmd
}

// formatFailure renders a failed question the same way the HTTP API does.
func formatFailure(r answer.Result) string {
	return "Error processing question: " + domain.SafeMessage(r.Err())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
