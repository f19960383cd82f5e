package commands

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

func newServiceVersionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service-versions",
		Short: "Print the current committed variable version of every service",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			versions, err := a.vars.CurrentServiceVersions(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading service versions: %w", err)
			}
			if len(versions) == 0 {
				fmt.Println("no committed service variables")
				return nil
			}

			names := make([]string, 0, len(versions))
			for name := range versions {
				names = append(names, string(name))
			}
			sort.Strings(names)
			for _, name := range names {
				v := versions[model.ServiceName(name)]
				if v == nil {
					fmt.Printf("%-30s -\n", name)
					continue
				}
				fmt.Printf("%-30s %s\n", name, *v)
			}
			return nil
		},
	}
	return cmd
}
