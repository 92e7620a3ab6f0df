package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
)

type retrieveOptions struct {
	k      int
	expand bool
	format string
}

func newRetrieveCmd() *cobra.Command {
	var opts retrieveOptions

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Show the ranked passages retrieved for a query",
		Long: `Retrieve runs hybrid retrieval without answer generation.

With --expand (the default) the query is expanded, every variant is
retrieved and the merged pool is re-ranked when enabled. With
--expand=false only the query itself is retrieved, as evaluation does.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetrieve(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().IntVarP(&opts.k, "top-k", "k", 5, "Number of passages to show")
	cmd.Flags().BoolVar(&opts.expand, "expand", true, "Expand the query before retrieval")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runRetrieve(ctx context.Context, w io.Writer, query string, opts retrieveOptions) error {
	if opts.k < 1 {
		return fmt.Errorf("k must be >= 1, got %d", opts.k)
	}
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	var results []chunk.Scored
	if opts.expand {
		pool, err := s.wired.Pipeline.Retrieve(ctx, query)
		if err != nil {
			return err
		}
		results = pool.Candidates[:min(opts.k, len(pool.Candidates))]
	} else {
		results, err = s.wired.Pipeline.RetrieveForEvaluation(ctx, query, opts.k)
		if err != nil {
			return err
		}
	}

	if opts.format == "json" {
		return writeJSON(w, results)
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %.4f  %s\n   %s\n", i+1, r.Score, r.UID(), preview(r.Content, 200))
	}
	if len(results) == 0 {
		fmt.Fprintln(&b, "no passages retrieved")
	}
	_, err = io.WriteString(w, b.String())
	return err
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
