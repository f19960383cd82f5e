package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TOSIT-IO/tdp-lib/internal/runner"
)

func newDangerFixRunningCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "danger-fix-running",
		Short: "Force a stuck RUNNING deployment to FAILURE",
		Long: `Use only after confirming the running deployment's external process is
genuinely dead (a crashed control plane, a killed executor). Flips the
deployment to FAILURE and every PLANNED or RUNNING operation to HELD so
"plan resume" can pick it back up; it does not touch anything the
executor may still be doing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			d, err := a.store.GetRunningDeployment(ctx)
			if err != nil {
				return fmt.Errorf("looking up the running deployment: %w", err)
			}
			if d == nil {
				fmt.Println("no deployment is currently RUNNING")
				return nil
			}

			if err := runner.ForceFailRunning(d, time.Now); err != nil {
				return err
			}
			if err := a.store.UpdateDeploymentState(ctx, d); err != nil {
				return fmt.Errorf("persisting forced failure: %w", err)
			}
			for i := range d.Operations {
				if err := a.store.UpdateOperation(ctx, &d.Operations[i]); err != nil {
					return fmt.Errorf("persisting held operation: %w", err)
				}
			}
			fmt.Printf("deployment #%d forced to FAILURE\n", d.ID)
			return nil
		},
	}
	return cmd
}
