package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/anomaly_dashboard/internal/detector"
	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
)

// NewAnalyzeCommand returns the analyze command
func NewAnalyzeCommand(g *globals) (cmd *cobra.Command) {
	var opts series.Options

	cmd = &cobra.Command{
		Use:     "analyze FILE",
		Short:   "Score a CSV file and ask the detector to describe it",
		Example: `mdctl analyze machine-1-1.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args[0])
			if err != nil {
				return err
			}
			scores, err := g.client.Predict(cmd.Context(), uploadName(args[0]), strings.NewReader(text))
			if err != nil {
				return err
			}
			out := newScoredSeries(text, scores, opts)
			out.Analysis, err = g.client.Analyze(cmd.Context(), detector.AnalyzeRequest{
				Values: out.Values,
				Scores: out.Scores,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	seriesFlags(cmd, &opts)

	return cmd
}
