package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

func newDefaultDiffCommand() *cobra.Command {
	var (
		service      string
		defaultsDirs []string
	)

	cmd := &cobra.Command{
		Use:   "default-diff",
		Short: "List every field in a service's current variables that overrides a collection default",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			diffs, err := a.vars.DefaultDiff(cmd.Context(), model.ServiceName(service), defaultsDirs)
			if err != nil {
				return fmt.Errorf("computing default diff for %s: %w", service, err)
			}
			if len(diffs) == 0 {
				fmt.Println("no overrides from default")
				return nil
			}
			for _, d := range diffs {
				fmt.Printf("%-40s default=%v current=%v\n", d.Path, d.DefaultValue, d.CurrentValue)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "")
	cmd.Flags().StringSliceVar(&defaultsDirs, "defaults-dir", nil, "directories providing the collection's default values")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("defaults-dir")
	return cmd
}
