package commands

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newOpsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List every operation known to the merged collection namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			names := make([]string, 0, len(a.operations.Operations))
			for name := range a.operations.Operations {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				op := a.operations.Operations[name]
				kind := "other"
				if op.FromDAG {
					kind = "dag"
				}
				if op.Noop {
					fmt.Printf("%-60s %-6s noop  (collection=%s)\n", name, kind, op.CollectionName)
				} else {
					fmt.Printf("%-60s %-6s hosts=%d  (collection=%s)\n", name, kind, len(op.HostNames), op.CollectionName)
				}
			}
			return nil
		},
	}
	return cmd
}
