package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
	"github.com/TOSIT-IO/tdp-lib/internal/planner"
	"github.com/TOSIT-IO/tdp-lib/internal/policy"
	"github.com/TOSIT-IO/tdp-lib/internal/status"
)

var policyBundlePath string

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compile an intent into a PLANNED deployment and persist it",
	}
	cmd.PersistentFlags().StringVar(&policyBundlePath, "policy", "", "optional Rego/JSON policy directory gating the new deployment")

	cmd.AddCommand(newPlanDAGCommand())
	cmd.AddCommand(newPlanOpsCommand())
	cmd.AddCommand(newPlanReconfigureCommand())
	cmd.AddCommand(newPlanResumeCommand())
	cmd.AddCommand(newPlanCustomCommand())
	cmd.AddCommand(newPlanImportCommand())
	return cmd
}

// persist runs the optional policy gate, then persists d as a PLANNED
// deployment, printing its assigned ID.
func persist(ctx context.Context, a *app, d *model.DeploymentModel) error {
	var eng *policy.Engine
	if policyBundlePath != "" {
		var err error
		eng, err = policy.NewEngine(a.log)
		if err != nil {
			return fmt.Errorf("initializing policy engine: %w", err)
		}
		if err := eng.LoadPolicies(ctx, []string{policyBundlePath}); err != nil {
			return fmt.Errorf("loading policy bundle: %w", err)
		}
	}
	if err := policy.Gate(ctx, eng, d, nil); err != nil {
		return err
	}
	if err := a.store.CreateDeployment(ctx, d); err != nil {
		return fmt.Errorf("persisting deployment: %w", err)
	}
	fmt.Printf("planned deployment #%d (%s, %d operations)\n", d.ID, d.DeploymentType, len(d.Operations))
	return nil
}

func newPlanDAGCommand() *cobra.Command {
	var (
		sources         []string
		targets         []string
		filter          string
		filterRegex     bool
		restart         bool
		reverse         bool
		stop            bool
		rollingInterval int
	)

	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Plan a DAG-scoped deployment (factory 1)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			opt := planner.DAGOptions{
				Sources: sources, Targets: targets, Filter: filter, FilterIsRegex: filterRegex,
				Restart: restart, Reverse: reverse, Stop: stop,
			}
			if cmd.Flags().Changed("rolling-interval") {
				opt.RollingInterval = &rollingInterval
			} else if a.cfg.RollingInterval != nil {
				opt.RollingInterval = a.cfg.RollingInterval
			}

			d, err := planner.FromDAG(a.graph, a.operations, opt)
			if err != nil {
				return err
			}
			return persist(cmd.Context(), a, d)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "")
	cmd.Flags().StringSliceVar(&targets, "target", nil, "")
	cmd.Flags().StringVar(&filter, "filter", "", "glob (default) or regex pattern over operation names")
	cmd.Flags().BoolVar(&filterRegex, "filter-regex", false, "treat --filter as a regex")
	cmd.Flags().BoolVar(&restart, "restart", false, "")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "")
	cmd.Flags().BoolVar(&stop, "stop", false, "")
	cmd.Flags().IntVar(&rollingInterval, "rolling-interval", 0, "seconds between rolling restarts")
	return cmd
}

func newPlanOpsCommand() *cobra.Command {
	var (
		operations      []string
		hosts           []string
		extraVars       []string
		rollingInterval int
	)

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Plan an ad-hoc ordered operation list (factory 2)",
		Long: `Every --host and --extra-vars flag applies to every --operation given;
pass a single operation per invocation to target hosts individually.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			hostsByOp := make(map[string][]model.HostName)
			varsByOp := make(map[string][]string)
			if len(hosts) > 0 || len(extraVars) > 0 {
				hostNames := make([]model.HostName, len(hosts))
				for i, h := range hosts {
					hostNames[i] = model.HostName(h)
				}
				for _, name := range operations {
					if len(hosts) > 0 {
						hostsByOp[name] = hostNames
					}
					if len(extraVars) > 0 {
						varsByOp[name] = extraVars
					}
				}
			}

			var interval *int
			if cmd.Flags().Changed("rolling-interval") {
				interval = &rollingInterval
			} else {
				interval = a.cfg.RollingInterval
			}

			d, err := planner.FromOperations(a.operations, operations, hostsByOp, varsByOp, interval)
			if err != nil {
				return err
			}
			return persist(cmd.Context(), a, d)
		},
	}

	cmd.Flags().StringSliceVar(&operations, "operation", nil, "operation name, repeatable, in order")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "limit every listed operation to these hosts")
	cmd.Flags().StringSliceVar(&extraVars, "extra-vars", nil, "extra_vars passed to every listed operation")
	cmd.Flags().IntVar(&rollingInterval, "rolling-interval", 0, "seconds between rolling restarts")
	_ = cmd.MarkFlagRequired("operation")
	return cmd
}

func newPlanReconfigureCommand() *cobra.Command {
	var rollingInterval int

	cmd := &cobra.Command{
		Use:   "reconfigure",
		Short: "Plan a RECONFIGURE deployment from the current stale statuses (factory 4)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.store.AllEvents(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading status log: %w", err)
			}
			reduced := status.Reduce(events)

			var stale []planner.StaleStatus
			for _, s := range reduced {
				if !s.IsStale() {
					continue
				}
				stale = append(stale, planner.StaleStatus{
					Entity:    s.Entity.Entity,
					Host:      s.Entity.Host,
					ToConfig:  s.ToConfig != nil && *s.ToConfig,
					ToRestart: s.ToRestart != nil && *s.ToRestart,
				})
			}

			var interval *int
			if cmd.Flags().Changed("rolling-interval") {
				interval = &rollingInterval
			} else {
				interval = a.cfg.RollingInterval
			}

			d, err := planner.FromStaleHostedEntities(a.graph, a.operations, stale, interval)
			if err != nil {
				return err
			}
			return persist(cmd.Context(), a, d)
		},
	}
	cmd.Flags().IntVar(&rollingInterval, "rolling-interval", 0, "seconds between rolling restarts")
	return cmd
}

func newPlanResumeCommand() *cobra.Command {
	var deploymentID int64

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Plan a RESUME deployment from a failed deployment's held and failed operations (factory 5)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			failed, err := a.store.GetDeployment(cmd.Context(), deploymentID)
			if err != nil {
				return fmt.Errorf("loading deployment #%d: %w", deploymentID, err)
			}
			d, err := planner.FromFailedDeployment(a.operations, failed)
			if err != nil {
				return err
			}
			return persist(cmd.Context(), a, d)
		},
	}
	cmd.Flags().Int64Var(&deploymentID, "deployment-id", 0, "the FAILURE-state deployment to resume")
	_ = cmd.MarkFlagRequired("deployment-id")
	return cmd
}

func newPlanCustomCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "custom",
		Short: "Plan a CUSTOM deployment from a JSON (operation, host?, extra_vars?) list (factory 3)",
		Long: `Reads a JSON array of {"name":"...","host":"...","extra_vars":["..."]}
objects from --file (host and extra_vars optional) and persists them in
the given order, unchanged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			var entries []struct {
				Name      string   `json:"name"`
				Host      string   `json:"host"`
				ExtraVars []string `json:"extra_vars"`
			}
			if err := json.Unmarshal(raw, &entries); err != nil {
				return fmt.Errorf("parsing %s: %w", file, err)
			}

			triples := make([]planner.OperationHostVars, len(entries))
			for i, e := range entries {
				t := planner.OperationHostVars{Name: e.Name, ExtraVars: e.ExtraVars}
				if e.Host != "" {
					h := model.HostName(e.Host)
					t.Host = &h
				}
				triples[i] = t
			}

			d, err := planner.FromOperationsHostsVars(triples)
			if err != nil {
				return err
			}
			return persist(cmd.Context(), a, d)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the JSON operation list")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newPlanImportCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Persist a previously exported DeploymentModel JSON document verbatim",
		Long: `Reads a full model.DeploymentModel JSON document from --file and
persists it as a new PLANNED
deployment with a fresh ID, re-running the policy gate over it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			var d model.DeploymentModel
			if err := json.Unmarshal(raw, &d); err != nil {
				return fmt.Errorf("parsing %s: %w", file, err)
			}
			d.ID = 0
			d.State = model.DeploymentPlanned
			d.StartTime = nil
			d.EndTime = nil
			for i := range d.Operations {
				d.Operations[i].State = model.OperationPlanned
				d.Operations[i].StartTime = nil
				d.Operations[i].EndTime = nil
				d.Operations[i].Logs = nil
			}

			return persist(cmd.Context(), a, &d)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the exported deployment JSON document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
