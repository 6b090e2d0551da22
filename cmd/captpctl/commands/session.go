package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errDesignatorRequired indicates a command that needs a designator
// argument was called without one.
var errDesignatorRequired = errors.New("designator argument is required")

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage CapTP sessions",
	}

	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionShowCmd())
	cmd.AddCommand(sessionAbortCmd())

	return cmd
}

// --- session list ---

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all active CapTP sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			sessions, err := client.ListSessions(context.Background())
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out, err := formatSessions(sessions, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- session show ---

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <designator>",
		Short: "Show details of a single CapTP session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if args[0] == "" {
				return errDesignatorRequired
			}

			session, err := client.GetSession(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}

			out, err := formatSession(session, outputFormat)
			if err != nil {
				return fmt.Errorf("format session: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- session abort ---

func sessionAbortCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "abort <designator>",
		Short: "Abort a CapTP session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if args[0] == "" {
				return errDesignatorRequired
			}

			if err := client.AbortSession(context.Background(), args[0], reason); err != nil {
				return fmt.Errorf("abort session: %w", err)
			}

			fmt.Printf("Session %s aborted.\n", args[0])

			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason to report to the remote peer")

	return cmd
}
