package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/llm"
)

type expandOptions struct {
	mode   string
	n      int
	format string
}

type expansionReport struct {
	Mode     string   `json:"mode"`
	Variants []string `json:"variants"`
	Hyde     string   `json:"hyde"`
	StepBack string   `json:"step_back"`
}

func newExpandCmd() *cobra.Command {
	var opts expandOptions

	cmd := &cobra.Command{
		Use:   "expand <query>",
		Short: "Show how a query is rewritten before retrieval",
		Long: `Expand prints the multi-query variants, the hypothetical answer passage
(HyDE) and the step-back question for a query. No corpus is loaded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Expansion mode: template, llm, none (default from config)")
	cmd.Flags().IntVarP(&opts.n, "variants", "n", 0, "Number of variants (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runExpand(ctx context.Context, w io.Writer, query string, opts expandOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.mode == "" {
		opts.mode = cfg.Retrieval.ExpansionMode
	}
	if opts.n <= 0 {
		opts.n = cfg.Retrieval.NumQueries
	}
	mode, err := expansion.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	model, err := llm.New(cfg.LLM)
	if err != nil {
		return err
	}
	t, err := expansion.New(mode, model, cfg.LLM.Temperature)
	if err != nil {
		return err
	}

	report, err := expand(ctx, t, query, opts.n)
	if err != nil {
		return err
	}
	report.Mode = string(mode)
	if opts.format == "json" {
		return writeJSON(w, report)
	}
	return writeExpansion(w, report)
}

func expand(ctx context.Context, t expansion.Transformer, query string, n int) (*expansionReport, error) {
	variants, err := t.MultiQuery(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("multi-query: %w", err)
	}
	hyde, err := t.Hyde(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("hyde: %w", err)
	}
	stepBack, err := t.StepBack(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("step-back: %w", err)
	}
	return &expansionReport{Variants: variants, Hyde: hyde, StepBack: stepBack}, nil
}

func writeExpansion(w io.Writer, r *expansionReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Variants (%s):\n", r.Mode)
	for i, v := range r.Variants {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, v)
	}
	fmt.Fprintf(&b, "\nHyDE:\n  %s\n\nStep-back:\n  %s\n", r.Hyde, r.StepBack)
	_, err := io.WriteString(w, b.String())
	return err
}
