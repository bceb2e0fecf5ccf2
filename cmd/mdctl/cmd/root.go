// Package cmd holds the mdctl commands: one-shot access to the detector
// pipeline without running the dashboard server.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/anomaly_dashboard/internal/detector"
)

// globals are the persistent flags shared by every subcommand.
type globals struct {
	detectorURL string
	timeout     time.Duration
	logLevel    string
	client      *detector.Client
}

// NewCommand returns the root command for the mdctl CLI
func NewCommand() (cmd *cobra.Command) {
	g := &globals{}

	cmd = &cobra.Command{
		Use:          "mdctl",
		Short:        "anomaly detector client CLI",
		Long:         `mdctl scores CSV files, previews them, and follows the detector socket from the command line.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(cmd.ErrOrStderr(), g.logLevel)
			g.client = detector.NewClient(g.detectorURL, &http.Client{Timeout: g.timeout})
			return nil
		},
	}

	cmd.AddCommand(
		NewPreviewCommand(),
		NewPredictCommand(g),
		NewAnalyzeCommand(g),
		NewStreamCommand(g),
		NewSessionCommand(),
	)

	defaultURL := os.Getenv("DETECTOR_URL")
	if defaultURL == "" {
		defaultURL = "http://127.0.0.1:8000"
	}
	cmd.PersistentFlags().StringVar(&g.detectorURL, "url", defaultURL, "detector server url")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "detector request timeout")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	return cmd
}

func setupLogger(w io.Writer, level string) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel})))
}

func printJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
