package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TOSIT-IO/tdp-lib/internal/dag"
)

func newDAGCommand() *cobra.Command {
	var (
		sources []string
		targets []string
		restart bool
		stop    bool
	)

	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Print the operation order the DAG produces for a selection",
		Long: `Resolves sources/targets against the merged collection DAG and prints
the resulting operation order, exactly as plan dag would consume it,
without persisting anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			names := a.graph.GetOperations(dag.Options{
				Sources: sources, Targets: targets, Restart: restart, Stop: stop,
			})
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "start the selection from these operations' descendants")
	cmd.Flags().StringSliceVar(&targets, "target", nil, "limit the selection to these operations' ancestors")
	cmd.Flags().BoolVar(&restart, "restart", false, "rewrite _start actions to _restart")
	cmd.Flags().BoolVar(&stop, "stop", false, "rewrite _start actions to _stop")

	return cmd
}
