package commands

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TOSIT-IO/tdp-lib/internal/executor"
	"github.com/TOSIT-IO/tdp-lib/internal/runner"
)

// commandExecutor shells out to an external playbook runner for every
// operation: exec(playbookPath, host, extra_vars...). This is the
// production adapter for the out-of-scope "external executor"
// collaborator named in spec.md §1/§6 — the core never runs a
// playbook itself.
type commandExecutor struct {
	bin string
}

func (e *commandExecutor) Execute(ctx context.Context, playbookPath, host string, extraVars []string) (executor.State, []byte, error) {
	args := append([]string{playbookPath, host}, extraVars...)
	cmd := exec.CommandContext(ctx, e.bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return executor.StateFailure, out.Bytes(), nil
	}
	return executor.StateSuccess, out.Bytes(), nil
}

func newDeployCommand() *cobra.Command {
	var (
		deploymentID int64
		executorBin  string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Walk a PLANNED deployment to completion, one operation at a time",
		Long: `Drives a PLANNED deployment via the runner iterator, persisting each
operation's state and the status events it induces before advancing to
the next operation. --executor names an external command invoked as
"<bin> <playbook-path> <host> [extra-vars...]"; without it, a fake
always-succeeds executor runs for dry-run and demonstration use.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			d, err := a.store.GetDeployment(ctx, deploymentID)
			if err != nil {
				return fmt.Errorf("loading deployment #%d: %w", deploymentID, err)
			}

			var ex executor.Executor
			if executorBin != "" {
				ex = &commandExecutor{bin: executorBin}
			} else {
				ex = &executor.FakeExecutor{Default: executor.StateSuccess}
				log.Warn().Msg("no --executor given, running with an always-succeeds fake executor")
			}

			it, err := runner.New(d, ex, a, a.store, time.Now, a.log)
			if err != nil {
				return err
			}
			it.Start()
			if err := a.store.UpdateDeploymentState(ctx, d); err != nil {
				return fmt.Errorf("persisting deployment start: %w", err)
			}

			for {
				step, err := it.Next(ctx)
				if err != nil {
					return fmt.Errorf("advancing deployment #%d: %w", deploymentID, err)
				}
				if step.Done {
					break
				}

				if err := a.store.UpdateOperation(ctx, &step.Operation); err != nil {
					return fmt.Errorf("persisting operation %s: %w", step.Operation.Operation, err)
				}
				if len(step.Events) > 0 {
					if _, err := a.store.AppendEvents(ctx, step.Events); err != nil {
						return fmt.Errorf("appending status events: %w", err)
					}
				}
				fmt.Printf("%-60s %s\n", step.Operation.Operation, step.Operation.State)
			}

			if err := a.store.UpdateDeploymentState(ctx, d); err != nil {
				return fmt.Errorf("persisting final deployment state: %w", err)
			}
			fmt.Printf("deployment #%d finished: %s\n", d.ID, d.State)
			return nil
		},
	}

	cmd.Flags().Int64Var(&deploymentID, "deployment-id", 0, "the PLANNED deployment to run")
	cmd.Flags().StringVar(&executorBin, "executor", "", "external executor command; omit for a fake dry-run executor")
	_ = cmd.MarkFlagRequired("deployment-id")
	return cmd
}
