package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/anomaly_dashboard/internal/session"
)

// NewSessionCommand returns the session command
func NewSessionCommand() (cmd *cobra.Command) {
	var dbPath string

	cmd = &cobra.Command{
		Use:   "session",
		Short: "Inspect the saved dashboard session",
	}

	open := func() (*session.Store, error) {
		return session.Open(dbPath)
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the saved session as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			snap, err := store.Load()
			if errors.Is(err, session.ErrNotFound) {
				return fmt.Errorf("no session saved in %s", dbPath)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			return store.Delete(session.Key)
		},
	}

	cmd.AddCommand(showCmd, clearCmd)
	cmd.PersistentFlags().StringVar(&dbPath, "db", "./data/session.db", "Session database path")

	return cmd
}
