// Package planner implements C6, the deployment planner: the five
// factory methods that compile a user intent into a persisted, ordered
// DeploymentModel. Grounded on the five factories in
// original_source/tdp/core/models/deployment_model.py, re-architected
// per spec.md §9 as explicit result-returning functions instead of
// exception-raising constructors.
package planner

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/TOSIT-IO/tdp-lib/internal/collections"
	"github.com/TOSIT-IO/tdp-lib/internal/dag"
	"github.com/TOSIT-IO/tdp-lib/internal/model"
	"github.com/TOSIT-IO/tdp-lib/internal/tdperrors"
)

// row is an intermediate (operation name, host, extra_vars) triple
// before operation_order is assigned, mirroring the source's
// OperationHostTuple.
type row struct {
	name      string
	host      *model.HostName
	extraVars []string
}

func materialize(deploymentType model.DeploymentType, options map[string]any, rows []row) *model.DeploymentModel {
	ops := make([]model.OperationModel, 0, len(rows))
	for i, r := range rows {
		ops = append(ops, model.OperationModel{
			OperationOrder: i + 1,
			Operation:      r.name,
			Host:           r.host,
			ExtraVars:      r.extraVars,
			State:          model.OperationPlanned,
		})
	}
	return &model.DeploymentModel{
		Options:        options,
		State:          model.DeploymentPlanned,
		DeploymentType: deploymentType,
		Operations:     ops,
	}
}

func waitSleepRow(seconds int) row {
	return row{name: model.WaitSleepOperationName, extraVars: []string{fmt.Sprintf("wait_sleep_seconds=%d", seconds)}}
}

// DAGOptions controls FromDAG.
type DAGOptions struct {
	Sources         []string
	Targets         []string
	Filter          string
	FilterIsRegex   bool // default false: glob, matching spec.md's filter_type default
	Restart         bool
	Reverse         bool
	Stop            bool
	RollingInterval *int
}

// FromDAG compiles a DAG-scoped deployment (spec.md §4.6, factory 1).
// rollingInterval wait_sleep rows are only inserted after a restart
// operation that binds at least one host — mirroring the source's
// can_perform_rolling_restart, which requires a non-empty playbook host
// list, not just a restart action.
func FromDAG(g *dag.Graph, ops *collections.Operations, opt DAGOptions) (*model.DeploymentModel, error) {
	names := g.GetOperations(dag.Options{
		Sources: opt.Sources,
		Targets: opt.Targets,
		Restart: opt.Restart,
		Stop:    opt.Stop,
	})

	if opt.Filter != "" {
		var err error
		if opt.FilterIsRegex {
			names, err = dag.FilterRegex(names, opt.Filter)
		} else {
			names, err = dag.FilterGlob(names, opt.Filter)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(names) == 0 {
		return nil, &tdperrors.NoOperationMatchError{}
	}

	if opt.Reverse {
		reversed := make([]string, len(names))
		for i, n := range names {
			reversed[len(names)-1-i] = n
		}
		names = reversed
	}

	var rows []row
	for _, n := range names {
		rows = append(rows, row{name: n})
		if opt.RollingInterval != nil && isRestart(n) && hasHosts(ops, n) {
			rows = append(rows, waitSleepRow(*opt.RollingInterval))
		}
	}

	options := map[string]any{
		"sources": opt.Sources, "targets": opt.Targets, "filter": opt.Filter,
		"restart": opt.Restart, "reverse": opt.Reverse, "stop": opt.Stop,
	}
	return materialize(model.DeploymentTypeDAG, options, rows), nil
}

func isRestart(operationName string) bool {
	parsed, err := model.ParseOperationName(operationName)
	return err == nil && parsed.Action == model.ActionRestart
}

// hasHosts reports whether the named operation binds at least one host
// in the given namespace — a noop service-level aggregator (e.g. the
// synthesized <service>_restart sibling of a noop _start) binds none,
// so a rolling-restart wait_sleep after it would be meaningless.
func hasHosts(ops *collections.Operations, operationName string) bool {
	op, ok := ops.Operations[operationName]
	return ok && len(op.HostNames) > 0
}

// FromOperations compiles an ad-hoc, ordered operation-name list
// (spec.md §4.6, factory 2). When hosts is empty for a restart
// operation whose playbook binds at least one host and rollingInterval is
// set, the operation expands into one row per host with wait_sleep rows
// interleaved (the rolling-restart expansion, see testable scenario S6).
func FromOperations(ops *collections.Operations, names []string, hosts map[string][]model.HostName, extraVars map[string][]string, rollingInterval *int) (*model.DeploymentModel, error) {
	var rows []row

	for _, name := range names {
		op, ok := ops.Operations[name]
		if !ok {
			return nil, &tdperrors.MissingOperationError{Operation: name}
		}

		requested := hosts[name]
		for _, h := range requested {
			if len(op.HostNames) > 0 {
				if _, valid := op.HostNames[h]; !valid {
					return nil, &tdperrors.MissingHostForOperationError{Operation: name, Host: string(h)}
				}
			}
		}

		ev := extraVars[name]

		if len(requested) == 0 && isRestart(name) && rollingInterval != nil && len(op.HostNames) > 0 {
			hostList := op.HostNamesSlice()
			sort.Slice(hostList, func(i, j int) bool { return hostList[i] < hostList[j] })
			for _, h := range hostList {
				hCopy := h
				rows = append(rows, row{name: name, host: &hCopy, extraVars: ev})
				rows = append(rows, waitSleepRow(*rollingInterval))
			}
			continue
		}

		if len(requested) == 0 {
			rows = append(rows, row{name: name, extraVars: ev})
			continue
		}
		for _, h := range requested {
			hCopy := h
			rows = append(rows, row{name: name, host: &hCopy, extraVars: ev})
		}
	}

	if len(rows) == 0 {
		return nil, &tdperrors.NoOperationMatchError{}
	}

	options := map[string]any{"operations": names}
	return materialize(model.DeploymentTypeOperations, options, rows), nil
}

// OperationHostVars is one (name, host?, extra_vars?) triple for a
// CUSTOM deployment.
type OperationHostVars struct {
	Name      string
	Host      *model.HostName
	ExtraVars []string
}

// FromOperationsHostsVars compiles a CUSTOM deployment, one row per
// triple, in the order given (spec.md §4.6, factory 3).
func FromOperationsHostsVars(triples []OperationHostVars) (*model.DeploymentModel, error) {
	if len(triples) == 0 {
		return nil, &tdperrors.NoOperationMatchError{}
	}
	rows := make([]row, 0, len(triples))
	for _, t := range triples {
		rows = append(rows, row{name: t.Name, host: t.Host, extraVars: t.ExtraVars})
	}
	return materialize(model.DeploymentTypeCustom, map[string]any{"custom": true}, rows), nil
}

// StaleStatus is the subset of a HostedEntityStatus the RECONFIGURE
// factory needs.
type StaleStatus struct {
	Entity    model.EntityName
	Host      *model.HostName
	ToConfig  bool
	ToRestart bool
}

// FromStaleHostedEntities compiles a RECONFIGURE deployment from stale
// statuses (spec.md §4.6, factory 4).
func FromStaleHostedEntities(g *dag.Graph, ops *collections.Operations, stale []StaleStatus, rollingInterval *int) (*model.DeploymentModel, error) {
	if len(stale) == 0 {
		return nil, &tdperrors.NothingToReconfigureError{}
	}

	required := make(map[string]struct{})
	for _, s := range stale {
		if s.ToConfig {
			name := model.OperationName{Entity: s.Entity, Action: model.ActionConfig}.String()
			required[name] = struct{}{}
		}
		if s.ToRestart {
			name := model.OperationName{Entity: s.Entity, Action: model.ActionStart}.String()
			required[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(required))
	for n := range required {
		names = append(names, n)
	}
	ordered := g.TopoSort(names)
	ordered = rewriteStartToRestart(ordered)

	hostByOp := make(map[string][]model.HostName)
	for _, s := range stale {
		if s.ToRestart {
			name := model.OperationName{Entity: s.Entity, Action: model.ActionRestart}.String()
			if s.Host != nil {
				hostByOp[name] = append(hostByOp[name], *s.Host)
			}
		}
	}
	for _, hosts := range hostByOp {
		sort.Slice(hosts, func(i, j int) bool { return hosts[i] < hosts[j] })
	}

	var rows []row
	for _, n := range ordered {
		hostsForOp := hostByOp[n]
		if len(hostsForOp) == 0 {
			rows = append(rows, row{name: n})
			if rollingInterval != nil && isRestart(n) {
				rows = append(rows, waitSleepRow(*rollingInterval))
			}
			continue
		}
		for _, h := range hostsForOp {
			hCopy := h
			rows = append(rows, row{name: n, host: &hCopy})
			if rollingInterval != nil && isRestart(n) {
				rows = append(rows, waitSleepRow(*rollingInterval))
			}
		}
	}

	return materialize(model.DeploymentTypeReconfigure, map[string]any{"reconfigure": true}, rows), nil
}

func rewriteStartToRestart(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		parsed, err := model.ParseOperationName(n)
		if err == nil && parsed.Action == model.ActionStart {
			parsed.Action = model.ActionRestart
			out[i] = parsed.String()
			continue
		}
		out[i] = n
	}
	return out
}

// FromFailedDeployment compiles a RESUME deployment: the failed
// operation and every later row from the failed plan, preserving hosts
// and extra_vars (spec.md §4.6, factory 5).
func FromFailedDeployment(ops *collections.Operations, failed *model.DeploymentModel) (*model.DeploymentModel, error) {
	if failed.State != model.DeploymentFailure || len(failed.Operations) == 0 {
		return nil, &tdperrors.NothingToResumeError{State: string(failed.State)}
	}

	failedIdx := -1
	for i, op := range failed.Operations {
		if op.State == model.OperationFailure {
			failedIdx = i
			break
		}
	}
	if failedIdx == -1 {
		return nil, &tdperrors.NothingToResumeError{State: string(failed.State)}
	}

	var rows []row
	for _, op := range failed.Operations[failedIdx:] {
		if _, ok := ops.Operations[op.Operation]; !ok {
			return nil, &tdperrors.MissingOperationError{Operation: op.Operation}
		}
		rows = append(rows, row{name: op.Operation, host: op.Host, extraVars: op.ExtraVars})
	}

	return materialize(model.DeploymentTypeResume, map[string]any{"resumed_from": failed.ID}, rows), nil
}

// FilterNamesGlob and FilterNamesRegex are thin re-exports used by
// callers (e.g. the CLI adapter) that only have a name list, not a
// Graph, such as when filtering a resume or custom plan's names before
// construction.
func FilterNamesGlob(names []string, pattern string) ([]string, error) {
	return dag.FilterGlob(names, pattern)
}

func FilterNamesRegex(names []string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		if re.MatchString(n) {
			out = append(out, n)
		}
	}
	return out, nil
}
