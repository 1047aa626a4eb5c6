package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/upb/context-retrieval/app"
	"github.com/upb/context-retrieval/config"
	"github.com/upb/context-retrieval/internal/observability"
	"github.com/upb/context-retrieval/services"
	"github.com/upb/context-retrieval/services/retrieval"
	"go.uber.org/zap"
)

type rootOptions struct {
	logLevel string
}

// requestFlags are the request fields settable from the command line
type requestFlags struct {
	k          int
	minScore   float64
	namespaces []string
	licenses   []string
	language   string
	types      []string
	exclude    []int64
	asJSON     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "retrievectl",
		Short:         "Query the context retrieval pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "log level (debug, info, warn, error)")

	root.AddCommand(newQueryCmd(opts), newKeyCmd(opts))
	return root
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	flags := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a retrieval against the configured search provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			deps, err := app.NewDependencies(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close(context.Background()) }()

			result, err := deps.Service.Retrieve(ctx, flags.raw(strings.Join(args, " ")))
			if err != nil {
				return describeError(err)
			}

			out := cmd.OutOrStdout()
			if flags.asJSON {
				return writeJSON(out, result)
			}
			printResult(out, result)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func newKeyCmd(opts *rootOptions) *cobra.Command {
	flags := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "key <text>",
		Short: "Print the query hash, cache key and compiled filter without searching",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			boosts, err := retrieval.LoadBoostTable(cfg.Search.BoostsFile)
			if err != nil {
				return err
			}
			service := retrieval.NewService(retrieval.ServiceDeps{
				Boosts: boosts,
				Logger: logger,
			}, app.RetrievalOptions(cfg))

			exp, err := service.Explain(flags.raw(strings.Join(args, " ")))
			if err != nil {
				return describeError(err)
			}

			out := cmd.OutOrStdout()
			if flags.asJSON {
				return writeJSON(out, exp)
			}
			fmt.Fprintf(out, "query_hash:  %s\n", exp.QueryHash)
			fmt.Fprintf(out, "cache_key:   %s\n", exp.CacheKey)
			fmt.Fprintf(out, "filter:      %s\n", orNone(exp.Query.Filter))
			fmt.Fprintf(out, "limit:       %d\n", exp.Query.Limit)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.k, "k", 0, "number of chunks to return (default from DEFAULT_K)")
	fs.Float64Var(&f.minScore, "min-score", -1, "minimum relevance score (default from DEFAULT_MIN_SCORE)")
	fs.StringSliceVar(&f.namespaces, "namespace", nil, "boost profile namespace (content, docs, products)")
	fs.StringSliceVar(&f.licenses, "license", nil, "allowed licenses")
	fs.StringVar(&f.language, "language", "", "language code")
	fs.StringSliceVar(&f.types, "type", nil, "post types")
	fs.Int64SliceVar(&f.exclude, "exclude", nil, "content ids to exclude")
	fs.BoolVar(&f.asJSON, "json", false, "print raw JSON")
}

// raw builds the untyped request body so the CLI goes through the same
// validation as HTTP callers. Unset flags are omitted to pick up defaults.
func (f *requestFlags) raw(query string) map[string]any {
	raw := map[string]any{"query": query}
	if f.k != 0 {
		raw["k"] = f.k
	}
	if f.minScore >= 0 {
		raw["min_score"] = f.minScore
	}
	if len(f.namespaces) > 0 {
		raw["namespaces"] = f.namespaces
	}

	filters := map[string]any{}
	if len(f.licenses) > 0 {
		filters["license"] = f.licenses
	}
	if f.language != "" {
		filters["language"] = f.language
	}
	if len(f.types) > 0 {
		filters["post_types"] = f.types
	}
	if len(f.exclude) > 0 {
		filters["exclude_ids"] = f.exclude
	}
	if len(filters) > 0 {
		raw["filters"] = filters
	}
	return raw
}

func setup(ctx context.Context, opts *rootOptions) (*config.Config, *zap.Logger, error) {
	logger, err := observability.NewLogger(opts.logLevel, "console")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// describeError flattens validation violations into one message
func describeError(err error) error {
	violations := services.GetViolations(err)
	if len(violations) == 0 {
		return err
	}
	lines := make([]string, len(violations))
	for i, v := range violations {
		lines[i] = fmt.Sprintf("  %s: %s", v.Field, v.Message)
	}
	return fmt.Errorf("invalid request:\n%s", strings.Join(lines, "\n"))
}

func printResult(out io.Writer, result *retrieval.Result) {
	bold := color.New(color.Bold)
	faint := color.New(color.Faint)

	bold.Fprintf(out, "%d chunks", result.TotalRetrieved)
	fmt.Fprintf(out, "  recall=%.2f avg=%.2f cache=%s hash=%s\n",
		result.RecallMetrics.RecallScore, result.RecallMetrics.AvgScore, result.CacheStatus, result.QueryHash)

	for i, c := range result.Chunks {
		fmt.Fprintf(out, "\n%2d. ", i+1)
		bold.Fprintf(out, "[%.3f] %s", c.Score, c.ID)
		fmt.Fprintf(out, "  %s %s %s\n", c.Metadata.Type, c.Metadata.License, c.Metadata.Language)
		if c.Metadata.SourceURL != "" {
			faint.Fprintf(out, "    %s\n", c.Metadata.SourceURL)
		}
		fmt.Fprintf(out, "    %s\n", c.Metadata.Excerpt)
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(out)
	}
	for _, w := range result.Warnings {
		severityColor(w.Severity).Fprintf(out, "%-6s", w.Severity)
		fmt.Fprintf(out, " %s: %s\n", w.Type, w.Message)
	}
}

func severityColor(s retrieval.Severity) *color.Color {
	switch s {
	case retrieval.SeverityHigh:
		return color.New(color.FgRed, color.Bold)
	case retrieval.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
