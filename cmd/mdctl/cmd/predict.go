package cmd

import (
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/anomaly_dashboard/internal/csvtok"
	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
)

// scoredSeries is the predict output: the tokenized rows with their scores
// and alarm colors.
type scoredSeries struct {
	Labels    []string  `json:"labels"`
	Values    []float64 `json:"values"`
	Scores    []float64 `json:"scores"`
	Colors    []string  `json:"colors"`
	Alarms    int       `json:"alarms"`
	Threshold float64   `json:"threshold"`
	Analysis  string    `json:"analysis,omitempty"`
}

func newScoredSeries(text string, scores []float64, opts series.Options) scoredSeries {
	buf := series.NewBuffer(series.DefaultCapacity)
	buf.Reset(csvtok.Tokenize(text).Samples(), scores, opts)
	return scoredSeries{
		Labels:    buf.Labels(),
		Values:    buf.Values(),
		Scores:    buf.Scores(),
		Colors:    buf.Colors(),
		Alarms:    lo.CountBy(buf.Scores(), opts.IsAlarm),
		Threshold: opts.Threshold,
	}
}

func seriesFlags(cmd *cobra.Command, opts *series.Options) {
	*opts = series.DefaultOptions()
	cmd.Flags().Float64Var(&opts.Threshold, "threshold", series.DefaultThreshold, "Alarm threshold")
	cmd.Flags().IntVar(&opts.Channel, "channel", 0, "Channel to plot for multi-column rows")
	cmd.Flags().BoolVar(&opts.Smoothing, "smooth", false, "Apply the moving average")
	cmd.Flags().IntVar(&opts.Window, "window", series.DefaultWindow, "Moving average window")
}

func uploadName(path string) string {
	if path == "-" || strings.TrimSpace(path) == "" {
		return "stdin.csv"
	}
	return filepath.Base(path)
}

// NewPredictCommand returns the predict command
func NewPredictCommand(g *globals) (cmd *cobra.Command) {
	var opts series.Options

	cmd = &cobra.Command{
		Use:     "predict FILE",
		Short:   "Score a CSV file with the detector",
		Example: `mdctl --url http://127.0.0.1:8000 predict machine-1-1.csv --threshold 0.8`,
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
			return printJSON(cmd.OutOrStdout(), newScoredSeries(text, scores, opts))
		},
	}

	seriesFlags(cmd, &opts)

	return cmd
}
