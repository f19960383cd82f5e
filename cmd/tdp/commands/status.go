package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
	"github.com/TOSIT-IO/tdp-lib/internal/status"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect and maintain the cluster status log",
	}
	cmd.AddCommand(newStatusShowCommand())
	cmd.AddCommand(newStatusEditCommand())
	cmd.AddCommand(newStatusGenerateStalesCommand())
	cmd.AddCommand(newStatusPruneHostsCommand())
	return cmd
}

func newStatusShowCommand() *cobra.Command {
	var (
		service string
		host    string
		stale   bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the reduced cluster status, optionally filtered",
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

			filter := status.Filter{}
			if service != "" {
				s := model.ServiceName(service)
				filter.Service = &s
			}
			if host != "" {
				filter.Hosts = []model.HostName{model.HostName(host)}
			}
			if stale {
				t := true
				filter.Stale = &t
			}
			reduced = status.Find(reduced, filter)

			if len(reduced) == 0 {
				fmt.Println("no matching status entries")
				return nil
			}
			for _, s := range reduced {
				host := "-"
				if s.Entity.Host != nil {
					host = string(*s.Entity.Host)
				}
				fmt.Printf("%-40s host=%-20s stale=%-5v\n", s.Entity.Entity.String(), host, s.IsStale())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "limit to a single service")
	cmd.Flags().StringVar(&host, "host", "", "limit to a single host")
	cmd.Flags().BoolVar(&stale, "stale", false, "only entities needing reconfiguration or restart")
	return cmd
}

// newStatusEditCommand appends a single MANUAL status-log event. The
// interactive status editor spec.md §1 excludes from scope is not built
// here; this is the non-interactive equivalent — one event per
// invocation, driven entirely by flags.
func newStatusEditCommand() *cobra.Command {
	var (
		service   string
		component string
		host      string
		toConfig  bool
		toRestart bool
		message   string
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Append one MANUAL status-log event",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			e := model.SCHStatusLogEvent{
				EventTime: time.Now(),
				Service:   model.ServiceName(service),
				Source:    model.StatusSourceManual,
			}
			if component != "" {
				c := model.ComponentName(component)
				e.Component = &c
			}
			if host != "" {
				h := model.HostName(host)
				e.Host = &h
			}
			if cmd.Flags().Changed("to-config") {
				e.ToConfig = &toConfig
			}
			if cmd.Flags().Changed("to-restart") {
				e.ToRestart = &toRestart
			}
			if message != "" {
				e.Message = &message
			}

			if _, err := a.store.AppendEvents(cmd.Context(), []model.SCHStatusLogEvent{e}); err != nil {
				return fmt.Errorf("appending status event: %w", err)
			}
			fmt.Println("status event appended")
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "")
	cmd.Flags().StringVar(&component, "component", "", "")
	cmd.Flags().StringVar(&host, "host", "", "")
	cmd.Flags().BoolVar(&toConfig, "to-config", false, "mark the entity as needing reconfiguration")
	cmd.Flags().BoolVar(&toRestart, "to-restart", false, "mark the entity as needing a restart")
	cmd.Flags().StringVar(&message, "message", "", "free-text note attached to the event")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func newStatusGenerateStalesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-stales",
		Short: "Run stale detection and append the resulting STALE events",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := status.GenerateStaleSCHLogs(cmd.Context(), a.store, a.vars, time.Now)
			if err != nil {
				return fmt.Errorf("generating stale events: %w", err)
			}
			fmt.Printf("appended %d stale event(s)\n", len(events))
			return nil
		},
	}
	return cmd
}

// newStatusPruneHostsCommand retires hosts no longer in the given
// keep-list: every currently active entity bound to a pruned host gets
// a DECOMMISSION event clearing IsActive. There is no core factory for
// this — it is a thin, CLI-only maintenance operation over the status
// log's append-only contract (internal/store.AppendEvents).
func newStatusPruneHostsCommand() *cobra.Command {
	var keep []string

	cmd := &cobra.Command{
		Use:   "prune-hosts",
		Short: "Decommission every active entity bound to a host not in --keep",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			keepSet := make(map[model.HostName]struct{}, len(keep))
			for _, h := range keep {
				keepSet[model.HostName(h)] = struct{}{}
			}

			existing, err := a.store.AllEvents(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading status log: %w", err)
			}
			reduced := status.Reduce(existing)

			now := time.Now()
			var pruneEvents []model.SCHStatusLogEvent
			for _, s := range reduced {
				if s.Entity.Host == nil {
					continue
				}
				if _, ok := keepSet[*s.Entity.Host]; ok {
					continue
				}
				if s.IsActive != nil && !*s.IsActive {
					continue
				}
				inactive := false
				e := model.SCHStatusLogEvent{
					EventTime: now,
					Service:   s.Entity.Entity.Service,
					Host:      s.Entity.Host,
					IsActive:  &inactive,
					Source:    model.StatusSourceDecommision,
				}
				if !s.Entity.Entity.IsService() {
					comp := s.Entity.Entity.Component
					e.Component = &comp
				}
				pruneEvents = append(pruneEvents, e)
			}

			if len(pruneEvents) == 0 {
				fmt.Println("no hosts to prune")
				return nil
			}
			if _, err := a.store.AppendEvents(cmd.Context(), pruneEvents); err != nil {
				return fmt.Errorf("appending decommission events: %w", err)
			}
			fmt.Printf("decommissioned %d entity/host pair(s)\n", len(pruneEvents))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&keep, "keep", nil, "hosts to keep; every other active host is decommissioned")
	_ = cmd.MarkFlagRequired("keep")
	return cmd
}
