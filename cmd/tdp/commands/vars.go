package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
	"github.com/TOSIT-IO/tdp-lib/internal/tdperrors"
	"github.com/TOSIT-IO/tdp-lib/internal/variables"
)

func newVarsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vars",
		Short: "Read, patch, and validate service variable files",
	}
	cmd.AddCommand(newVarsEditCommand())
	cmd.AddCommand(newVarsUpdateCommand())
	cmd.AddCommand(newVarsValidateCommand())
	return cmd
}

// newVarsEditCommand prints the current merged content of one variable
// file. spec.md §1 excludes an interactive editor from scope; this is
// its non-interactive read-only counterpart, built on the same
// WithTransaction open/close contract "update" commits through.
func newVarsEditCommand() *cobra.Command {
	var (
		service string
		path    string
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Print a service variable file's current content",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			sv := a.vars.For(model.ServiceName(service))
			var content map[string]any
			_, err = sv.WithTransaction(cmd.Context(), []string{path}, "read", func(t *variables.Transaction) error {
				content = t.Get(path)
				return nil
			})
			var empty *tdperrors.EmptyCommitError
			if err != nil && !errors.As(err, &empty) {
				return fmt.Errorf("reading %s/%s: %w", service, path, err)
			}

			encoded, err := json.MarshalIndent(content, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "")
	cmd.Flags().StringVar(&path, "path", "", "relative variable file path, e.g. hdfs.yml")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newVarsUpdateCommand() *cobra.Command {
	var (
		service string
		path    string
		patch   string
		message string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Deep-merge a JSON patch into a service variable file and commit it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var decoded map[string]any
			if err := json.Unmarshal([]byte(patch), &decoded); err != nil {
				return fmt.Errorf("parsing --patch as JSON: %w", err)
			}

			sv := a.vars.For(model.ServiceName(service))
			version, err := sv.WithTransaction(cmd.Context(), []string{path}, message, func(t *variables.Transaction) error {
				return t.Set(path, decoded)
			})
			if err != nil {
				return fmt.Errorf("committing %s/%s: %w", service, path, err)
			}
			fmt.Printf("committed %s/%s at version %s\n", service, path, version)
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "")
	cmd.Flags().StringVar(&path, "path", "", "relative variable file path, e.g. hdfs.yml")
	cmd.Flags().StringVar(&patch, "patch", "", "JSON object deep-merged into the current content")
	cmd.Flags().StringVar(&message, "message", "tdp vars update", "commit message")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("patch")
	return cmd
}

func newVarsValidateCommand() *cobra.Command {
	var (
		service      string
		schemaPaths  []string
		defaultsDirs []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a service's current variables against its CUE/JSON schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.vars.Validate(cmd.Context(), model.ServiceName(service), schemaPaths, defaultsDirs); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Printf("%s: valid\n", service)
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "")
	cmd.Flags().StringSliceVar(&schemaPaths, "schema", nil, "CUE/JSON schema file(s) to validate against")
	cmd.Flags().StringSliceVar(&defaultsDirs, "defaults-dir", nil, "directories providing default values merged under the schema")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}
