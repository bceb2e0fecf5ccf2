package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/anomaly_dashboard/internal/csvtok"
)

// NewPreviewCommand returns the preview command
func NewPreviewCommand() (cmd *cobra.Command) {
	var rows int

	cmd = &cobra.Command{
		Use:     "preview FILE",
		Short:   "Render a CSV file as a table",
		Example: `mdctl preview machine-1-1.csv --rows 10`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args[0])
			if err != nil {
				return err
			}
			return csvtok.RenderPreview(cmd.OutOrStdout(), csvtok.Tokenize(text), rows)
		},
	}

	cmd.Flags().IntVar(&rows, "rows", csvtok.DefaultPreviewRows, "Number of data rows to show")

	return cmd
}
