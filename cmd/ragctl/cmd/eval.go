package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/evaluation"
)

type evalOptions struct {
	dataset string
	k       int
	inspect bool
	format  string
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score retrieval against a labelled dataset",
		Long: `Eval runs every query of the dataset through retrieval without
expansion or re-ranking and prints Recall@k, Precision@k, MRR and latency
per query and averaged over the dataset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEval(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.dataset, "dataset", "d", "configs/eval/dataset.yaml", "Path to the judgments file")
	cmd.Flags().IntVarP(&opts.k, "top-k", "k", 5, "Cut-off rank")
	cmd.Flags().BoolVar(&opts.inspect, "inspect", false, "Print every retrieved UID with a content preview")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runEval(ctx context.Context, w io.Writer, opts evalOptions) error {
	judgments, err := evaluation.LoadDataset(opts.dataset)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := evaluation.NewHarness(s.wired.Pipeline, opts.k).Run(ctx, judgments)
	if err != nil {
		return err
	}
	if opts.format == "json" {
		return writeJSON(w, report)
	}
	return evaluation.WriteText(w, report, opts.inspect)
}
