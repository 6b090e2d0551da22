package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func healthzCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthz",
		Short: "Check daemon liveness",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			status, err := client.Healthz(context.Background())
			if err != nil {
				return fmt.Errorf("healthz: %w", err)
			}

			fmt.Println(status["status"])

			return nil
		},
	}
}
