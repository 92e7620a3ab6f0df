package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/pipeline"
)

type queryOptions struct {
	format string
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a policy question with citations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runQuery(ctx context.Context, w io.Writer, question string, opts queryOptions) error {
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	ans, err := s.wired.Pipeline.Run(ctx, question)
	if err != nil {
		return err
	}
	if opts.format == "json" {
		return writeJSON(w, ans)
	}
	return writeAnswer(w, ans)
}

func writeAnswer(w io.Writer, ans *pipeline.Answer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", ans.Answer)
	if len(ans.Queries) > 1 {
		fmt.Fprintf(&b, "\nQueries:\n")
		for _, q := range ans.Queries {
			fmt.Fprintf(&b, "  - %s\n", q)
		}
	}
	if len(ans.Sources) > 0 {
		fmt.Fprintf(&b, "\nSources:\n")
		for _, src := range ans.Sources {
			fmt.Fprintf(&b, "  [Source %d] %s (page %s)\n", src.Label, src.Source, src.Page)
		}
	}
	for _, warning := range ans.Warnings {
		fmt.Fprintf(&b, "\nwarning: %s\n", warning)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
