package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newBrowseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "List every persisted deployment and its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			deployments, err := a.store.ListDeployments(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing deployments: %w", err)
			}
			if len(deployments) == 0 {
				fmt.Println("no deployments recorded")
				return nil
			}
			for _, d := range deployments {
				fmt.Printf("#%-6d %-12s %-12s operations=%d\n", d.ID, d.DeploymentType, d.State, len(d.Operations))
			}
			return nil
		},
	}
	return cmd
}
